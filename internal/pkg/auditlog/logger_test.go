package auditlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerSummaryAndSave(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	l.Log("MATURITY_CHECK", true, map[string]string{"empresa": "Acme"}, map[string]int{"score": 55}, "")
	l.Log("DPIA_GENERATION", false, nil, nil, "disk full")

	s := l.Summary()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)

	path, err := l.Save()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "MATURITY_CHECK", raw[0]["etapa"])
	assert.Equal(t, true, raw[0]["sucesso"])
	assert.NotContains(t, raw[0], "erro")
	assert.Equal(t, "disk full", raw[1]["erro"])
}

func TestLoggerSaveMissingDir(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "missing"))
	l.Log("X", true, nil, nil, "")
	_, err := l.Save()
	assert.Error(t, err)
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := New(t.TempDir())
	l.Log("A", true, nil, nil, "")
	entries := l.Entries()
	entries[0].Step = "changed"
	assert.Equal(t, "A", l.Entries()[0].Step)
}
