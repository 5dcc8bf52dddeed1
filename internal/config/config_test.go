package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalSettings = `
whisper:
  model: models/ggml-base.bin
claude:
  model: claude-sonnet-4-20250514
  max_tokens: 4096
cuts:
  min_duration: 15
  max_duration: 90
  min_score: 7.0
  max_cuts: 5
`

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeSettings(t, minimalSettings))
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Paths.Data)
	assert.Equal(t, "yt-dlp", cfg.Download.Binary)
	assert.Equal(t, 5, cfg.Whisper.BeamSize)
	assert.Equal(t, "https://api.anthropic.com", cfg.Claude.BaseURL)
	assert.Equal(t, "1080x1920", cfg.Video.Resolution)
	assert.Equal(t, "crop", cfg.Video.ScaleMode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name      string
		settings  string
		wantField string
	}{
		{
			name:      "no whisper model",
			settings:  "claude:\n  model: m\n  max_tokens: 100\ncuts:\n  min_duration: 15\n  max_duration: 90\n  max_cuts: 5\n",
			wantField: "whisper.model",
		},
		{
			name:      "no claude model",
			settings:  "whisper:\n  model: m.bin\ncuts:\n  min_duration: 15\n  max_duration: 90\n  max_cuts: 5\n",
			wantField: "claude.model",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tt.settings))
			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantField, cerr.Field)
		})
	}
}

func TestLoad_OutOfRangeValues(t *testing.T) {
	tests := []struct {
		name      string
		settings  string
		wantField string
	}{
		{"bad resolution", minimalSettings + "video:\n  resolution: vertical\n", "video.resolution"},
		{"bad scale mode", minimalSettings + "video:\n  scale_mode: stretch\n", "video.scale_mode"},
		{"max below min duration", "whisper:\n  model: m.bin\nclaude:\n  model: m\n  max_tokens: 100\ncuts:\n  min_duration: 90\n  max_duration: 15\n  max_cuts: 5\n", "cuts.max_duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tt.settings))
			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantField, cerr.Field)
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg, err := Load(writeSettings(t, minimalSettings))
	require.NoError(t, err)

	err = cfg.RequireAPIKey()
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "ANTHROPIC_API_KEY", cerr.Field)

	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	cfg, err = Load(writeSettings(t, minimalSettings))
	require.NoError(t, err)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://api.anthropic.com", true},
		{"http://localhost:8080", true},
		{"http://127.0.0.1:9999", true},
		{"http://api.anthropic.com", false},
		{"https://evil.example.com", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validateBaseURL(tt.url)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	w, h, err := ParseResolution("1080x1920")
	require.NoError(t, err)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1920, h)

	for _, bad := range []string{"1080", "x1920", "-1x100", "0x0", "widexhigh"} {
		_, _, err := ParseResolution(bad)
		assert.Error(t, err, bad)
	}
}
