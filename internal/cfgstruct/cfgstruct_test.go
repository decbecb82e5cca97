// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package cfgstruct

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Interval time.Duration `help:"how often" default:"5m" testDefault:"10ms"`
	Workers  int           `help:"worker count" default:"4" devDefault:"1"`
	Name     string        `help:"a name" default:"$CONFDIR/name"`
	Enabled  bool          `help:"toggle" default:"true"`
	Hosts    []string      `help:"host list" default:"a,b"`

	Nested struct {
		MaxOpenConns int64 `help:"conns" default:"30"`
	}
}

func TestBindDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var cfg testConfig
	Bind(flags, &cfg, UseReleaseDefaults(), ConfDir("/tmp/conf"))

	require.NoError(t, flags.Parse(nil))

	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "/tmp/conf/name", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"a", "b"}, cfg.Hosts)
	assert.Equal(t, int64(30), cfg.Nested.MaxOpenConns)
}

func TestBindDefaultColumns(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var cfg testConfig
	Bind(flags, &cfg, UseTestDefaults())
	require.NoError(t, flags.Parse(nil))

	assert.Equal(t, 10*time.Millisecond, cfg.Interval)
	// test defaults fall back to the dev column when absent
	assert.Equal(t, 1, cfg.Workers)
}

func TestBindParsesFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var cfg testConfig
	Bind(flags, &cfg, UseReleaseDefaults())

	require.NoError(t, flags.Parse([]string{
		"--interval=1h",
		"--nested.max-open-conns=99",
		"--workers", "7",
	}))

	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, int64(99), cfg.Nested.MaxOpenConns)
	assert.Equal(t, 7, cfg.Workers)
}

func TestHyphenate(t *testing.T) {
	for in, want := range map[string]string{
		"MaxOpenConns": "max-open-conns",
		"APIKey":       "api-key",
		"TTL":          "ttl",
		"Interval":     "interval",
		"OAuthSecret":  "o-auth-secret",
	} {
		assert.Equal(t, want, hyphenate(in), in)
	}
}
