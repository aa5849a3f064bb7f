package regionrank

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NilError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, cfg.VPNCommand, "piactl")
	assert.Equal(t, cfg.SpeedTestCommand, "speedtest")
	assert.Equal(t, cfg.TargetServerID, "8864")
	assert.Equal(t, cfg.OutputPath, "result.txt")
	assert.Equal(t, cfg.Verbose, true)
	assert.Equal(t, cfg.SettleInterval, 2*time.Second)
	assert.Equal(t, cfg.DisconnectTimeout, 30*time.Second)
	assert.Equal(t, cfg.ConnectTimeout, 20*time.Second)
	assert.Equal(t, cfg.GracePeriod, 30*time.Second)
	assert.Equal(t, cfg.ActiveTimeout, 240*time.Second)
	assert.NilError(t, cfg.Validate())
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")

	assert.NilError(t, err)
	assert.DeepEqual(t, cfg, DefaultConfig())
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeTempFile(t, "regionrank.yaml", `
server_id: "1234"
connect_timeout: 45s
verbose: false
regions:
  - us-east
  - us-west
`)

	cfg, err := LoadConfig(path)

	assert.NilError(t, err)
	assert.Equal(t, cfg.TargetServerID, "1234")
	assert.Equal(t, cfg.ConnectTimeout, 45*time.Second)
	assert.Equal(t, cfg.Verbose, false)
	assert.DeepEqual(t, cfg.Regions, []string{"us-east", "us-west"})
	// untouched keys keep their defaults
	assert.Equal(t, cfg.VPNCommand, "piactl")
	assert.Equal(t, cfg.DisconnectTimeout, 30*time.Second)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "could not read config file")

	path := writeTempFile(t, "broken.yaml", "connect_timeout: [not a duration\n")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "could not parse config file")
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"REGIONRANK_VPN_COMMAND": "/opt/piavpn/bin/piactl",
		"REGIONRANK_OUTPUT":      "ranking.txt",
		"REGIONRANK_VERBOSE":     "false",
		"REGIONRANK_SERVER_ID":   "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	assert.NilError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, cfg.VPNCommand, "/opt/piavpn/bin/piactl")
	assert.Equal(t, cfg.OutputPath, "ranking.txt")
	assert.Equal(t, cfg.Verbose, false)
	assert.Equal(t, cfg.TargetServerID, "8864")
}

func TestConfig_ApplyEnvInvalidBool(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "REGIONRANK_VERBOSE" {
			return "sometimes", true
		}
		return "", false
	}

	err := DefaultConfig().ApplyEnv(lookup)
	assert.Assert(t, cmp.ErrorContains(err, "REGIONRANK_VERBOSE"))
}

func TestLoadDotEnv(t *testing.T) {
	path := writeTempFile(t, ".env", "REGIONRANK_TEST_DOTENV=from-file\n")
	t.Setenv("REGIONRANK_TEST_DOTENV", "")
	os.Unsetenv("REGIONRANK_TEST_DOTENV")

	assert.NilError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))
	assert.Equal(t, os.Getenv("REGIONRANK_TEST_DOTENV"), "from-file")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriod = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "grace period must not be negative")

	cfg = DefaultConfig()
	cfg.VPNCommand = ""
	assert.ErrorContains(t, cfg.Validate(), "vpn command")
}
