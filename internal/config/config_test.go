// ABOUTME: Tests for config loading: YAML parsing, env expansion, durations
// ABOUTME: Also covers defaults and validation failures

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
	path := filepath.Join(t.TempDir(), "plaza.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_addr: "0.0.0.0:9090"
  api_addr: "0.0.0.0:9091"
plaza:
  heartbeat_interval: 5s
  heartbeat_timeout: 20s
  sweep_interval: 10s
  message_log_capacity: 500
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.WSAddr)
	assert.Equal(t, "0.0.0.0:9091", cfg.Server.APIAddr)
	assert.Equal(t, 5*time.Second, cfg.Plaza.HeartbeatInterval)
	assert.Equal(t, 20*time.Second, cfg.Plaza.HeartbeatTimeout)
	assert.Equal(t, 10*time.Second, cfg.Plaza.SweepInterval)
	assert.Equal(t, 500, cfg.Plaza.MessageLogCapacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_addr: "localhost:8080"
  api_addr: "localhost:8081"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHeartbeatInterval, cfg.Plaza.HeartbeatInterval)
	assert.Equal(t, DefaultHeartbeatTimeout, cfg.Plaza.HeartbeatTimeout)
	assert.Equal(t, DefaultSweepInterval, cfg.Plaza.SweepInterval)
	assert.Equal(t, DefaultMessageLogCapacity, cfg.Plaza.MessageLogCapacity)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PLAZA_TEST_WS_ADDR", "10.1.2.3:7000")

	path := writeConfig(t, `
server:
  ws_addr: "${PLAZA_TEST_WS_ADDR}"
  api_addr: "localhost:8081"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:7000", cfg.Server.WSAddr)
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_addr: "${PLAZA_TEST_DOES_NOT_EXIST}"
  api_addr: "localhost:8081"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_addr is required")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "bad duration",
			yaml: `
server:
  ws_addr: "localhost:8080"
  api_addr: "localhost:8081"
plaza:
  heartbeat_interval: soon
`,
			wantErr: "parsing durations",
		},
		{
			name: "timeout not beyond interval",
			yaml: `
server:
  ws_addr: "localhost:8080"
  api_addr: "localhost:8081"
plaza:
  heartbeat_interval: 30s
  heartbeat_timeout: 30s
`,
			wantErr: "must exceed",
		},
		{
			name: "missing api addr",
			yaml: `
server:
  ws_addr: "localhost:8080"
`,
			wantErr: "api_addr is required",
		},
		{
			name:    "not yaml",
			yaml:    "{{{",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
