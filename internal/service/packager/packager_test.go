package packager

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackage(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"empresa.json":       `{"nome":"Acme"}`,
		"inventario.csv":     "Atividade\nCadastro\n",
		"log-auditoria.json": "[]",
		FileName:             "stale",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	path, n, err := Package(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)
	assert.Equal(t, 3, n)

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
	}
	assert.Equal(t, []string{"empresa.json", "inventario.csv", "log-auditoria.json"}, names)

	rc, err := r.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, files["inventario.csv"], string(content))
}

func TestPackageMissingDir(t *testing.T) {
	_, _, err := Package(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
