package llm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
default_model: relay-chat
models:
  - name: relay-chat
    upstream_url: http://llm-0:8008
    upstream_model: llama-3.1-8b-instruct
  - name: relay-chat-large
    upstream_url: http://llm-1:8008
    upstream_model: llama-3.1-70b-instruct
    first_token_timeout: 45s
    stream_timeout: 20m
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "relay-chat", cfg.DefaultModel)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "llama-3.1-8b-instruct", cfg.Models[0].UpstreamModel)
	assert.Equal(t, 45*time.Second, cfg.Models[1].FirstTokenTimeout)
	assert.Equal(t, 20*time.Minute, cfg.Models[1].StreamTimeout)
}

func TestLoadConfig_DefaultsToFirstModel(t *testing.T) {
	path := writeConfig(t, `
models:
  - name: relay-chat
    upstream_url: http://llm-0:8008
    upstream_model: llama
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "relay-chat", cfg.DefaultModel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"no models":       `default_model: relay-chat`,
		"empty name":      "models:\n  - name: \"\"\n    upstream_url: http://x\n",
		"duplicate model": "models:\n  - name: a\n    upstream_url: http://x\n  - name: a\n    upstream_url: http://y\n",
		"unknown default": "default_model: nope\nmodels:\n  - name: a\n    upstream_url: http://x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
