package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":42069", cfg.Server.Address)
	assert.Equal(t, 512*1024, cfg.Static.BufferSize)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "hearth.yaml", `
server:
  address: 127.0.0.1:8080
  keep_alive_timeout: 10s
static:
  root: /srv/www
  buffer_size: 4096
auth:
  users:
    alice: s3cret
`},
		{"toml", "hearth.toml", `
[server]
address = "127.0.0.1:8080"
keep_alive_timeout = "10s"

[static]
root = "/srv/www"
buffer_size = 4096

[auth.users]
alice = "s3cret"
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			cfg, err := Load(path, nil)
			require.NoError(t, err)
			assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address)
			assert.Equal(t, 10*time.Second, cfg.Server.KeepAliveTimeout)
			assert.Equal(t, "/srv/www", cfg.Static.Root)
			assert.Equal(t, 4096, cfg.Static.BufferSize)
			assert.Equal(t, map[string]string{"alice": "s3cret"}, cfg.Auth.Users)
			// untouched keys keep their defaults
			assert.Equal(t, "index.html", cfg.Static.Index)
			assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		})
	}
}

func TestLoadFindsFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hearth.yaml"), []byte("static:\n  index: default.htm\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "default.htm", cfg.Static.Index)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: file:1\n  max_connections: 5\nstatic:\n  buffer_size: 1000\n"), 0o644))

	t.Setenv("HEARTH_SERVER_ADDRESS", "env:2")
	t.Setenv("HEARTH_STATIC_BUFFER_SIZE", "2000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("address", "", "")
	flags.Int("buffer-size", 0, "")
	flags.Bool("no-color", false, "")
	require.NoError(t, flags.Parse([]string{"--buffer-size=3000", "--no-color"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "env:2", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Server.MaxConnections)
	assert.Equal(t, 3000, cfg.Static.BufferSize)
	assert.False(t, cfg.Log.Color)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"server.address", func(c *Config) { c.Server.Address = "" }},
		{"server.keep_alive_timeout", func(c *Config) { c.Server.KeepAliveTimeout = -time.Second }},
		{"server.max_connections", func(c *Config) { c.Server.MaxConnections = -1 }},
		{"static.root", func(c *Config) { c.Static.Root = "" }},
		{"static.buffer_size", func(c *Config) { c.Static.BufferSize = 0 }},
		{"static.index", func(c *Config) { c.Static.Index = "../index.html" }},
		{"log.level", func(c *Config) { c.Log.Level = "loud" }},
		{"log.format", func(c *Config) { c.Log.Format = "xml" }},
		{"metrics.path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"auth.users", func(c *Config) { c.Auth.Users = map[string]string{"a:b": "x"} }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("HEARTH_STATIC_BUFFER_SIZE", "-1")
	t.Chdir(t.TempDir())

	_, err := Load("", nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "static.buffer_size", verr.Field)
}

func TestEncode(t *testing.T) {
	cfg := Default()
	cfg.Auth.Users = map[string]string{"alice": "s3cret"}

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf, "yaml"))
	assert.Contains(t, buf.String(), ":42069")
	assert.Contains(t, buf.String(), "buffer_size: 524288")
	assert.Contains(t, buf.String(), "********")
	assert.NotContains(t, buf.String(), "s3cret")

	buf.Reset()
	require.NoError(t, cfg.Encode(&buf, "toml"))
	assert.Contains(t, buf.String(), `address = ":42069"`)
	assert.Contains(t, buf.String(), "[static]")
	assert.NotContains(t, buf.String(), "s3cret")

	// the caller's config is left alone
	assert.Equal(t, "s3cret", cfg.Auth.Users["alice"])

	assert.ErrorIs(t, cfg.Encode(&buf, "ini"), ErrUnknownFormat)
}
