package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setenv(t *testing.T, vars map[string]string) {
	t.Helper()
	for key, value := range vars {
		t.Setenv(key, value)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Pool.MaxSessions)
	assert.Equal(t, 3, cfg.Pool.MaxFailures)
	assert.Equal(t, 12*time.Second, cfg.Pool.MinSpacing)
	assert.Equal(t, 120*time.Second, cfg.Gateway.RequestTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Gateway.StreamInterval)
	assert.Equal(t, []string{"*"}, cfg.Gateway.PassthroughModels)
	assert.False(t, cfg.Cache.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Pool, cfg.Pool)
	assert.Equal(t, def.Gateway, cfg.Gateway)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	setenv(t, map[string]string{
		"PORT":                 "9000",
		"POOL_MAX_SESSIONS":    "4",
		"POOL_MIN_SPACING":     "15s",
		"POOL_MAX_FAILURES":    "5",
		"REQUEST_TIMEOUT":      "90s",
		"INTERACTION_TIMEOUT":  "30s",
		"POOL_ACQUIRE_TIMEOUT": "60s",
		"PASSTHROUGH_MODELS":   "gpt-*,claude-*",
		"API_KEYS":             "one,two",
		"CACHE_ENABLED":        "true",
		"LOG_DEV":              "true",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pool.MaxSessions)
	assert.Equal(t, 15*time.Second, cfg.Pool.MinSpacing)
	assert.Equal(t, 5, cfg.Pool.MaxFailures)
	assert.Equal(t, 90*time.Second, cfg.Gateway.RequestTimeout)
	assert.Equal(t, []string{"gpt-*", "claude-*"}, cfg.Gateway.PassthroughModels)
	assert.Equal(t, []string{"one", "two"}, cfg.Auth.APIKeys)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Logging.Development)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero sessions", func(c *Config) { c.Pool.MaxSessions = 0 }, false},
		{"zero failures", func(c *Config) { c.Pool.MaxFailures = 0 }, false},
		{"negative spacing", func(c *Config) { c.Pool.MinSpacing = -time.Second }, false},
		{"warm more than max", func(c *Config) { c.Pool.WarmOnStart = 3 }, false},
		{"interaction longer than request", func(c *Config) { c.Gateway.InteractionTimeout = 3 * time.Minute }, false},
		{"acquire longer than request", func(c *Config) { c.Pool.AcquireTimeout = 3 * time.Minute }, false},
		{"no spacing", func(c *Config) { c.Pool.MinSpacing = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestLoadInvalidEnvironmentFails(t *testing.T) {
	setenv(t, map[string]string{"POOL_MAX_SESSIONS": "0"})

	_, err := Load()
	assert.Error(t, err)

	assert.Equal(t, 2, LoadOrDefault().Pool.MaxSessions)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadProfile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantURL string
		wantErr bool
	}{
		{
			name:    "yaml",
			file:    "site.yaml",
			content: "name: staging\nbase_url: https://staging.example\n",
			wantURL: "https://staging.example",
		},
		{
			name:    "toml",
			file:    "site.toml",
			content: "name = \"staging\"\nbase_url = \"https://toml.example\"\n",
			wantURL: "https://toml.example",
		},
		{
			name:    "unknown extension",
			file:    "site.ini",
			content: "base_url=x",
			wantErr: true,
		},
		{
			name:    "broken yaml",
			file:    "site.yml",
			content: "base_url: [unterminated\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := LoadProfile(writeFile(t, tt.file, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "staging", profile.Name)
			assert.Equal(t, tt.wantURL, profile.BaseURL)
			assert.Equal(t, DefaultProfile().ChatPath, profile.ChatPath)
			assert.Len(t, profile.Models, 6)
		})
	}
}

func TestLoadProfileModels(t *testing.T) {
	path := writeFile(t, "site.yaml", `
models:
  - id: m1
    name: Model One
    owned_by: acme
`)
	profile, err := LoadProfile(path)
	require.NoError(t, err)
	require.Len(t, profile.Models, 1)
	assert.Equal(t, ModelEntry{ID: "m1", Name: "Model One", OwnedBy: "acme"}, profile.Models[0])
}

func TestResolveProfileOverrides(t *testing.T) {
	profile, err := ResolveProfile(SiteConfig{BaseURL: "http://127.0.0.1:9999", UserAgent: "test-agent"})
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9999", profile.BaseURL)
	assert.Equal(t, "test-agent", profile.UserAgent)
	assert.Equal(t, "toolbaz", profile.Name)
}

func TestProfileValidate(t *testing.T) {
	p := DefaultProfile()
	p.Models = nil
	assert.Error(t, p.Validate())

	p = DefaultProfile()
	p.ChatPath = ""
	assert.Error(t, p.Validate())
}
