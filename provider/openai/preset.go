package openai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Preset bundles the defaults of an OpenAI compatible backend.
type Preset struct {
	Name    string
	BaseURL string
	Model   string

	// PlaceholderKey is sent when no API key is configured, for backends that ignore it.
	PlaceholderKey string
}

var presets = map[string]Preset{
	"openai": {
		Name:    "openai",
		BaseURL: "https://api.openai.com/v1/",
		Model:   openai.ChatModelGPT4oMini,
	},
	"ollama": {
		Name:           "ollama",
		BaseURL:        "http://localhost:11434/v1/",
		Model:          "llama3.2",
		PlaceholderKey: "ollama",
	},
}

// LookupPreset returns the preset registered under name.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("unknown provider %q, expected one of %s", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetNames lists the registered presets in alphabetical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options returns the client options for the preset. Empty arguments fall back to the
// preset's defaults.
func (p Preset) Options(baseURL, apiKey string) []option.RequestOption {
	if baseURL == "" {
		baseURL = p.BaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if apiKey == "" {
		apiKey = p.PlaceholderKey
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return opts
}

// ModelOr returns model, or the preset default when model is empty.
func (p Preset) ModelOr(model string) string {
	if model != "" {
		return model
	}
	return p.Model
}
