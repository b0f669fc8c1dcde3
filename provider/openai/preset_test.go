package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPreset(t *testing.T) {
	p, err := LookupPreset(" OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name)
	assert.Equal(t, "https://api.openai.com/v1/", p.BaseURL)

	p, err = LookupPreset("ollama")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1/", p.BaseURL)
	assert.Equal(t, "llama3.2", p.Model)

	_, err = LookupPreset("anthropic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama, openai")
}

func TestPresetNames(t *testing.T) {
	assert.Equal(t, []string{"ollama", "openai"}, PresetNames())
}

func TestPreset_Options(t *testing.T) {
	openaiPreset, _ := LookupPreset("openai")
	assert.Len(t, openaiPreset.Options("", ""), 1, "no key, no key option")
	assert.Len(t, openaiPreset.Options("", "sk-test"), 2)

	ollama, _ := LookupPreset("ollama")
	assert.Len(t, ollama.Options("http://gpu-box:11434/v1", ""), 2, "placeholder key is sent")
}

func TestPreset_ModelOr(t *testing.T) {
	p, _ := LookupPreset("openai")
	assert.Equal(t, "gpt-4o", p.ModelOr("gpt-4o"))
	assert.Equal(t, "gpt-4o-mini", p.ModelOr(""))
}
