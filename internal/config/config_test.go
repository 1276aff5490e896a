package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsWithoutFile(t *testing.T) {
	req := require.New(t)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	req.NoError(err)

	req.Equal(3001, cfg.Port)
	req.Equal("release", cfg.Mode)
	req.Equal(int64(16<<20), cfg.ReadLimit)
	req.Equal(54*time.Second, cfg.PingPeriod)
	req.Equal(50, cfg.HistoryLimit)
	req.Equal("sqlite", cfg.Store.Driver)
	req.Equal(5*time.Second, cfg.Store.Timeout)
	req.Zero(cfg.Call.RingTimeout)
	req.Equal(5, cfg.Rate.JoinLimit)
	req.Len(cfg.ICEServers, 1)
	req.Equal([]string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func TestLoadFile_YAMLAndEnvOverrides(t *testing.T) {
	req := require.New(t)
	file := filepath.Join(t.TempDir(), "config.test.yaml")
	req.NoError(os.WriteFile(file, []byte(`
mode: debug
port: 4000
history_limit: 20
store:
  driver: badger
  dsn: ./data
call:
  ring_timeout: 30s
ice_servers:
  - urls: ["turn:turn.example.org:3478"]
    username: u
    credential: p
`), 0o600))

	// Given hosted-platform variables
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "postgres://relay@db/relay")
	t.Setenv("RELAY_STORE_DRIVER", "postgres")

	cfg, err := LoadFile(file)
	req.NoError(err)

	// Then the environment wins over the file, and the file over the defaults
	req.Equal(8080, cfg.Port)
	req.Equal("postgres", cfg.Store.Driver)
	req.Equal("postgres://relay@db/relay", cfg.Store.DSN)
	req.Equal("debug", cfg.Mode)
	req.Equal(20, cfg.HistoryLimit)
	req.Equal(30*time.Second, cfg.Call.RingTimeout)
	req.Len(cfg.ICEServers, 1)
	req.Equal("u", cfg.ICEServers[0].Username)
	req.Equal("p", cfg.ICEServers[0].Credential)
}

func TestLoadFile_DatabaseURLSelectsPostgres(t *testing.T) {
	req := require.New(t)

	// Given only DATABASE_URL, as on a hosted deploy
	t.Setenv("DATABASE_URL", "postgres://relay:pw@127.0.0.1:1/relay")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	req.NoError(err)

	// Then the store talks to postgres at that url
	req.Equal("postgres", cfg.Store.Driver)
	req.Equal("postgres://relay:pw@127.0.0.1:1/relay", cfg.Store.DSN)
}

func TestLoadFile_ExplicitDriverBeatsDatabaseURL(t *testing.T) {
	req := require.New(t)
	file := filepath.Join(t.TempDir(), "config.test.yaml")
	req.NoError(os.WriteFile(file, []byte("store:\n  driver: sqlite\n"), 0o600))
	t.Setenv("DATABASE_URL", "relay.db")

	cfg, err := LoadFile(file)
	req.NoError(err)
	req.Equal("sqlite", cfg.Store.Driver)
	req.Equal("relay.db", cfg.Store.DSN)
}
