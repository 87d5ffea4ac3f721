// ABOUTME: Tests for configuration loading, env expansion, and validation
// ABOUTME: Uses temp files to exercise the full Load path

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatseam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
messenger:
  verify_token: "verify-me"
  access_token: "page-token"
  app_secret: "shhh"
  echo: true
streams:
  buffer: 128
  heartbeat_interval: "25s"
  dedupe_ttl: "5m"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "verify-me", cfg.Messenger.VerifyToken)
	assert.Equal(t, "page-token", cfg.Messenger.AccessToken)
	assert.Equal(t, "shhh", cfg.Messenger.AppSecret)
	assert.True(t, cfg.Messenger.Echo)
	assert.Equal(t, 128, cfg.Streams.Buffer)
	assert.Equal(t, 25*time.Second, cfg.Streams.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.Streams.DedupeTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CHATSEAM_TEST_TOKEN", "from-env")

	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
messenger:
  verify_token: "${CHATSEAM_TEST_TOKEN}"
  access_token: "page-token"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Messenger.VerifyToken)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: valid")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
messenger:
  verify_token: "v"
  access_token: "a"
streams:
  heartbeat_interval: "soon"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "heartbeat_interval")
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing http addr",
			cfg:     Config{Messenger: MessengerConfig{VerifyToken: "v", AccessToken: "a"}},
			wantErr: "server.http_addr",
		},
		{
			name: "tailscale without hostname",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true},
				Messenger: MessengerConfig{VerifyToken: "v", AccessToken: "a"},
			},
			wantErr: "tailscale.hostname",
		},
		{
			name: "missing verify token",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Messenger: MessengerConfig{AccessToken: "a"},
			},
			wantErr: "messenger.verify_token",
		},
		{
			name: "missing access token",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Messenger: MessengerConfig{VerifyToken: "v"},
			},
			wantErr: "messenger.access_token",
		},
		{
			name: "tailscale satisfies addr requirement",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true, Hostname: "chatseam"},
				Messenger: MessengerConfig{VerifyToken: "v", AccessToken: "a"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
