package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temporary directory for the test.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", "aicacia")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := setupTestHome(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.API.Timeout.Duration())
	assert.Equal(t, filepath.Join(home, ".config", "aicacia", "token.json"), cfg.Token.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Chat.ThreadRefreshDelay.Duration())
	assert.Equal(t, 3, cfg.Chat.ThreadRefreshAttempts)
	assert.Equal(t, 20, cfg.History.PageSize)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_YAMLFile(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, `api:
  base_url: https://api.example.org
  timeout: 30s
chat:
  thread_refresh_delay: 1s
history:
  page_size: 50
`, 0600)

	cfg, err := Load(LoadOptions{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.org", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout.Duration())
	assert.Equal(t, time.Second, cfg.Chat.ThreadRefreshDelay.Duration())
	assert.Equal(t, 50, cfg.History.PageSize)
	// untouched sections keep their defaults
	assert.Equal(t, 3, cfg.Chat.ThreadRefreshAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "api:\n  base_url: https://file.example.org\n", 0600)
	t.Setenv("AICACIA_API_BASE_URL", "http://env.example.org:9000")
	t.Setenv("AICACIA_HISTORY_PAGE_SIZE", "5")

	cfg, err := Load(LoadOptions{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.org:9000", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.History.PageSize)
}

func TestLoad_EnvFile(t *testing.T) {
	setupTestHome(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AICACIA_API_BASE_URL=http://dotenv.local:8000\n"), 0600))
	// godotenv sets process variables; make sure the test cleans up after itself.
	t.Setenv("AICACIA_API_BASE_URL", "")
	require.NoError(t, os.Unsetenv("AICACIA_API_BASE_URL"))

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv.local:8000", cfg.API.BaseURL)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	setupTestHome(t)

	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err)
}

func TestLoad_RejectsPathOutsideConfigDir(t *testing.T) {
	setupTestHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://x\n"), 0600))

	_, err := Load(LoadOptions{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	home := setupTestHome(t)
	path := writeConfig(t, home, "history:\n  page_size: 10\n", 0644)

	_, err := Load(LoadOptions{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"non-http base url", map[string]string{"AICACIA_API_BASE_URL": "ftp://example.org"}, "api.base_url"},
		{"relative base url", map[string]string{"AICACIA_API_BASE_URL": "/api"}, "api.base_url"},
		{"zero page size", map[string]string{"AICACIA_HISTORY_PAGE_SIZE": "0"}, "history.page_size"},
		{"zero refresh attempts", map[string]string{"AICACIA_CHAT_THREAD_REFRESH_ATTEMPTS": "0"}, "chat.thread_refresh_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestHome(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(LoadOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "api.base_url", envKey("AICACIA_API_BASE_URL"))
	assert.Equal(t, "chat.thread_refresh_delay", envKey("AICACIA_CHAT_THREAD_REFRESH_DELAY"))
	assert.Equal(t, "token", envKey("AICACIA_TOKEN"))
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
