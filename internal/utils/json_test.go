package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleObject struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// TestExtractJSONArrayInProse 验证从说明文字中提取数组
func TestExtractJSONArrayInProse(t *testing.T) {
	content := "Claro! Aqui está a lista:\n[\"a\",\"b\"]\nEspero ter ajudado."
	got := ExtractJSON(content, []string{"fallback"})
	assert.Equal(t, []string{"a", "b"}, got)

	got = ExtractJSONArray(content, []string{"fallback"})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestExtractJSONNoSpanReturnsFallback(t *testing.T) {
	fallback := []string{"x"}
	assert.Equal(t, fallback, ExtractJSON("sem json aqui", fallback))
	assert.Equal(t, fallback, ExtractJSONArray("sem json aqui", fallback))
	assert.Equal(t, fallback, ExtractFirstJSONArray("sem json aqui", fallback))

	obj := ExtractJSONObject("nada", sampleObject{Name: "default"})
	assert.Equal(t, "default", obj.Name)
}

func TestExtractJSONMalformedReturnsFallback(t *testing.T) {
	content := `resposta: {"name": "x", "items": ["a",],}`
	got := ExtractJSONObject(content, sampleObject{Name: "fallback"})
	assert.Equal(t, "fallback", got.Name)
}

func TestExtractJSONObjectWithNestedArray(t *testing.T) {
	content := "```json\n{\"name\": \"acme\", \"items\": [\"a\", \"b\"]}\n```"
	got := ExtractJSON(content, sampleObject{})
	assert.Equal(t, "acme", got.Name)
	assert.Equal(t, []string{"a", "b"}, got.Items)
}

// TestExtractJSONFirstKindWins 数组先出现时按数组解析
func TestExtractJSONFirstKindWins(t *testing.T) {
	content := `["a"] e depois {"name": "b"}`
	got := ExtractJSON(content, []string{})
	assert.Equal(t, []string{"a"}, got)
}

func TestExtractFirstJSONArrayStopsAtFirstCloser(t *testing.T) {
	content := `Atividades: ["Cadastro", "Suporte"] e exemplo [1]`
	got := ExtractFirstJSONArray(content, []string{})
	assert.Equal(t, []string{"Cadastro", "Suporte"}, got)

	// 贪婪匹配会跨越两个数组导致解析失败
	greedy := ExtractJSONArray(content, []string{"fallback"})
	assert.Equal(t, []string{"fallback"}, greedy)
}

func TestExtractJSONGreedySpanAcrossTwoArrays(t *testing.T) {
	content := `Lista: ["a","b"]. Outra lista: ["c"]`
	fallback := []string{"fallback"}
	assert.Equal(t, fallback, ExtractJSON(content, fallback))
	assert.Equal(t, fallback, ExtractJSONArray(content, fallback))
	assert.Equal(t, []string{"a", "b"}, ExtractFirstJSONArray(content, fallback))
}

func TestToJSON(t *testing.T) {
	assert.Equal(t, `{"name":"a","items":null}`, ToJSON(sampleObject{Name: "a"}))
}
