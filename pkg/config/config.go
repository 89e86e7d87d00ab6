package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/eventbus"
	"github.com/go-go-golems/stockchat/pkg/logging"
)

const (
	AppName   = "stockchat"
	EnvPrefix = "STOCKCHAT"
)

// Settings is the resolved configuration shared by all commands.
type Settings struct {
	ServerURL       string
	Ticker          string
	Period          string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	ThreadDB        string
	ThreadID        string
	Output          string
	Redis           eventbus.Settings
	Logging         logging.Settings
}

// DefaultDir is where the config file and thread database live.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, "."+AppName)
}

// AddFlags registers the persistent flags on the root command and binds
// them to viper keys of the same name.
func AddFlags(cmd *cobra.Command, v *viper.Viper) error {
	fs := cmd.PersistentFlags()
	fs.String("config", "", "config file (default $HOME/.stockchat/config.yaml)")
	fs.String("server-url", "http://localhost:8000", "analysis backend base URL")
	fs.String("ticker", "AAPL", "ticker shown on start")
	fs.String("period", api.DefaultPeriod, "price history period (1d,5d,1mo,3mo,6mo,1y,2y,5y,max)")
	fs.Duration("refresh-interval", 60*time.Second, "quote refresh interval")
	fs.Duration("request-timeout", 30*time.Second, "timeout for non-streaming requests")
	fs.String("thread-db", filepath.Join(DefaultDir(), "threads.db"), "sqlite thread registry, empty for in-memory")
	fs.String("thread-id", "", "resume an existing thread")
	fs.String("output", "table", "output format for data commands (table, json, yaml)")
	fs.Bool("redis-enabled", false, "mirror chat events to a Redis stream")
	fs.String("redis-addr", eventbus.DefaultAddr, "Redis address host:port")
	fs.String("redis-stream", eventbus.DefaultStream, "Redis stream for mirrored events")
	fs.String("redis-group", "stockchat-tail", "Redis consumer group used by tail")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
	fs.String("log-file", "", "log to this file instead of stderr")
	fs.Bool("with-caller", false, "log caller file and line")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return errors.Wrap(err, "bind flags")
}

// InitViper sets up the env prefix and reads the config file. A missing
// default config file is not an error; a missing explicit one is.
func InitViper(v *viper.Viper, configFile string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		return errors.Wrapf(v.ReadInConfig(), "read config %s", configFile)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DefaultDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

// Load resolves and validates the settings from v.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		ServerURL:       strings.TrimSpace(v.GetString("server-url")),
		Ticker:          api.NormalizeTicker(v.GetString("ticker")),
		Period:          v.GetString("period"),
		RefreshInterval: v.GetDuration("refresh-interval"),
		RequestTimeout:  v.GetDuration("request-timeout"),
		ThreadDB:        os.ExpandEnv(v.GetString("thread-db")),
		ThreadID:        strings.TrimSpace(v.GetString("thread-id")),
		Output:          v.GetString("output"),
		Redis: eventbus.Settings{
			Enabled: v.GetBool("redis-enabled"),
			Addr:    v.GetString("redis-addr"),
			Stream:  v.GetString("redis-stream"),
			Group:   v.GetString("redis-group"),
		},
		Logging: logging.Settings{
			Level:      v.GetString("log-level"),
			Format:     v.GetString("log-format"),
			File:       os.ExpandEnv(v.GetString("log-file")),
			WithCaller: v.GetBool("with-caller"),
		},
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	u, err := url.Parse(s.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("server-url %q must be an absolute http(s) URL", s.ServerURL)
	}
	if s.Ticker == "" {
		return errors.New("ticker must not be empty")
	}
	if !api.ValidPeriod(s.Period) {
		return errors.Wrapf(api.ErrInvalidPeriod, "period %q", s.Period)
	}
	if s.RefreshInterval <= 0 {
		return errors.Errorf("refresh-interval must be positive, got %s", s.RefreshInterval)
	}
	if s.RequestTimeout <= 0 {
		return errors.Errorf("request-timeout must be positive, got %s", s.RequestTimeout)
	}
	switch s.Output {
	case "table", "json", "yaml":
	default:
		return errors.Errorf("unknown output format %q", s.Output)
	}
	return nil
}
