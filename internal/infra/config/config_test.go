package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
resolver:
  providers:
    - type: direct
`

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "yukebox.db", cfg.Database.Path)
	assert.Equal(t, "mpv", cfg.Player.Binary)
	assert.Equal(t, "/tmp/yukebox", cfg.Player.SocketDir)
	assert.Equal(t, 20, cfg.Player.ConnectRetries)
	assert.Equal(t, 3000, cfg.Player.RequestTimeoutMs)
	assert.Equal(t, 5, cfg.Scheduler.PollIntervalSec)
	assert.Equal(t, 60, cfg.Scheduler.GraceWindowSec)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.Len(t, cfg.Resolver.Providers, 1)
	assert.Equal(t, "direct", cfg.Resolver.Providers[0].Type)
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9000"
player:
  binary: /usr/local/bin/mpv
  connect_retries: 5
scheduler:
  poll_interval_sec: 2
  grace_window_sec: 30
resolver:
  providers:
    - type: ytdlp
      settings:
        format: bestaudio
    - type: direct
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/usr/local/bin/mpv", cfg.Player.Binary)
	assert.Equal(t, 5, cfg.Player.ConnectRetries)
	assert.Equal(t, 2, cfg.Scheduler.PollIntervalSec)
	assert.Equal(t, 30, cfg.Scheduler.GraceWindowSec)
	require.Len(t, cfg.Resolver.Providers, 2)
	assert.Equal(t, "bestaudio", cfg.Resolver.Providers[0].Settings["format"])
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("YUKEBOX_ADDR", ":7777")
	t.Setenv("YUKEBOX_DB_PATH", "/var/lib/yukebox/db.sqlite")
	t.Setenv("YUKEBOX_MPV_BINARY", "/opt/mpv")
	t.Setenv("YUKEBOX_SOCKET_DIR", "/run/yukebox")

	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9000"
resolver:
  providers:
    - type: direct
`))
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "/var/lib/yukebox/db.sqlite", cfg.Database.Path)
	assert.Equal(t, "/opt/mpv", cfg.Player.Binary)
	assert.Equal(t, "/run/yukebox", cfg.Player.SocketDir)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no providers",
			content: "server:\n  addr: \":8090\"\n",
			wantErr: "config validation failed",
		},
		{
			name:    "provider without type",
			content: "resolver:\n  providers:\n    - settings: {}\n",
			wantErr: "config validation failed",
		},
		{
			name:    "out of range retry interval",
			content: "player:\n  connect_retry_ms: 1\nresolver:\n  providers:\n    - type: direct\n",
			wantErr: "config validation failed",
		},
		{
			name:    "malformed yaml",
			content: "server: [unclosed\n",
			wantErr: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
