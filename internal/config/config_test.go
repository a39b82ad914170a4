package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreate_WritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.json")

	cfg, firstRun, err := LoadOrCreate(path)
	require.NoError(t, err)
	require.True(t, firstRun)
	assert.Equal(t, ModeDirect, cfg.Sync.Mode)
	assert.Equal(t, 120*time.Second, cfg.Interval())
	assert.Equal(t, 1, cfg.Excel.HeaderRow)

	var watch WatchDefaults
	require.NoError(t, cfg.UnmarshalIntegration("excel_watch", &watch))
	assert.Equal(t, 30, watch.PollSec)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, firstRun, err := LoadOrCreate(path)
	require.NoError(t, err)
	require.False(t, firstRun)
	assert.Equal(t, cfg.Server.Addr, again.Server.Addr)
}

func TestLoadOrCreate_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	base := Default()
	base.Excel.Path = "/z/pliku.xlsx"
	base.Sync.Secret = "z-pliku"
	require.NoError(t, Save(path, base))

	t.Setenv("EXCEL_FILE_PATH", "/share/Jobs 2025.xlsx")
	t.Setenv("SYNC_MODE", "remote")
	t.Setenv("SYNC_REMOTE_URL", "https://admin.example.com/api/sync/jobs")
	t.Setenv("SYNC_INTERVAL_SECONDS", "30")

	cfg, _, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, "/share/Jobs 2025.xlsx", cfg.Excel.Path)
	assert.Equal(t, ModeRemote, cfg.Sync.Mode)
	assert.Equal(t, "z-pliku", cfg.Sync.Secret, "unset env keeps file value")
	assert.Equal(t, 30*time.Second, cfg.Interval())
	require.NoError(t, cfg.Validate())
}

func TestLoadOrCreate_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nie json"), 0o644))

	_, _, err := LoadOrCreate(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Sync.Mode = ModeRemote
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote_url")
	assert.Contains(t, err.Error(), "secret")

	cfg.Sync.Mode = "ftp"
	require.ErrorContains(t, cfg.Validate(), "ftp")

	cfg = Default()
	cfg.Sync.Retries = -1
	require.ErrorContains(t, cfg.Validate(), "retries")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("XLS2JOBS_TEST_DOTENV=ok\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("XLS2JOBS_TEST_DOTENV") })

	n, err := LoadDotEnv(envFile, filepath.Join(dir, ".env.local"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "ok", os.Getenv("XLS2JOBS_TEST_DOTENV"))
}
