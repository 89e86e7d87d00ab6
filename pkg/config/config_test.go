package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/stockchat/pkg/api"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	v := viper.New()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	require.NoError(t, AddFlags(cmd, v))
	require.NoError(t, cmd.ParseFlags(args))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(t))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", s.ServerURL)
	require.Equal(t, "AAPL", s.Ticker)
	require.Equal(t, "6mo", s.Period)
	require.Equal(t, 60*time.Second, s.RefreshInterval)
	require.Equal(t, 30*time.Second, s.RequestTimeout)
	require.Equal(t, "table", s.Output)
	require.False(t, s.Redis.Enabled)
	require.Equal(t, "info", s.Logging.Level)
}

func TestLoad_FlagsAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STOCKCHAT_SERVER_URL", "https://analysis.example.com")
	t.Setenv("STOCKCHAT_REDIS_ENABLED", "true")

	v := newViper(t, "--ticker", " nvda ", "--period", "1y", "--output", "yaml")
	require.NoError(t, InitViper(v, ""))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "https://analysis.example.com", s.ServerURL)
	require.Equal(t, "NVDA", s.Ticker)
	require.Equal(t, "1y", s.Period)
	require.Equal(t, "yaml", s.Output)
	require.True(t, s.Redis.Enabled)
}

func TestInitViper_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ticker: msft\nrefresh-interval: 5s\n"), 0o600))

	v := newViper(t)
	require.NoError(t, InitViper(v, path))
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "MSFT", s.Ticker)
	require.Equal(t, 5*time.Second, s.RefreshInterval)

	require.Error(t, InitViper(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestValidate(t *testing.T) {
	_, err := Load(newViper(t, "--period", "7d"))
	require.ErrorIs(t, err, api.ErrInvalidPeriod)

	for _, args := range [][]string{
		{"--server-url", "localhost:8000"},
		{"--server-url", "ftp://x"},
		{"--ticker", "  "},
		{"--refresh-interval", "0s"},
		{"--request-timeout", "-1s"},
		{"--output", "xml"},
	} {
		_, err := Load(newViper(t, args...))
		require.Error(t, err, args)
	}
}
