package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validEnv returns env overrides that satisfy the required fields.
func validEnv() EnvOverrides {
	return EnvOverrides{
		BotToken:  "bot-token",
		ChannelID: "123456789",
	}
}

func TestResolve_EnvOnly(t *testing.T) {
	env := validEnv()
	env.APISecret = "s3cret"
	env.Port = "8080"
	env.ConfigPath = filepath.Join(t.TempDir(), "missing.toml")

	cfg, err := Resolve(env, CLIOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "bot-token", cfg.Discord.BotToken)
	assert.Equal(t, "123456789", cfg.Discord.ChannelID)
	assert.Equal(t, "s3cret", cfg.Server.APISecret)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultIndexPath, cfg.Index.Path)
}

func TestResolve_FileThenEnvThenCLI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nekodrive.toml")

	content := `
[server]
port = 4000

[discord]
bot_token = "file-token"
channel_id = "111"
backup_channel_id = "222"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	env := EnvOverrides{
		ConfigPath: path,
		BotToken:   "env-token", // env beats file
	}

	port := 5000
	cli := CLIOverrides{Port: &port} // CLI beats everything

	cfg, err := Resolve(env, cli)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Discord.BotToken)
	assert.Equal(t, "222", cfg.Discord.BackupChannelID)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestResolve_InvalidPortEnv(t *testing.T) {
	env := validEnv()
	env.Port = "not-a-number"
	env.ConfigPath = filepath.Join(t.TempDir(), "missing.toml")

	_, err := Resolve(env, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestResolve_DebugEnablesDebugLevel(t *testing.T) {
	env := validEnv()
	env.Debug = "true"
	env.ConfigPath = filepath.Join(t.TempDir(), "missing.toml")

	cfg, err := Resolve(env, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")

	require.NoError(t, os.WriteFile(path, []byte("[server]\nprot = 3000\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := DefaultConfig()

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_token")
	assert.Contains(t, err.Error(), "channel_id")
}

func TestValidate_BadLevelAndFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.BotToken = "t"
	cfg.Discord.ChannelID = "c"
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "logging.format")
}
