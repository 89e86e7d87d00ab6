package cmds

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/config"
	"github.com/go-go-golems/stockchat/pkg/eventbus"
	"github.com/go-go-golems/stockchat/pkg/threads"
)

// App carries the resolved settings to the subcommands. Settings is filled
// by the root command's PersistentPreRunE.
type App struct {
	Viper    *viper.Viper
	Settings *config.Settings
}

func NewApp() *App {
	return &App{Viper: viper.New()}
}

func (a *App) settings() (*config.Settings, error) {
	if a.Settings == nil {
		s, err := config.Load(a.Viper)
		if err != nil {
			return nil, err
		}
		a.Settings = s
	}
	return a.Settings, nil
}

func (a *App) Client() (*api.Client, error) {
	s, err := a.settings()
	if err != nil {
		return nil, err
	}
	return api.NewClient(s.ServerURL, api.WithTimeout(s.RequestTimeout))
}

// ThreadStore opens the sqlite registry, or an in-memory one when thread-db
// is empty.
func (a *App) ThreadStore() (threads.Store, error) {
	s, err := a.settings()
	if err != nil {
		return nil, err
	}
	if s.ThreadDB == "" {
		return threads.NewInMemoryStore(), nil
	}
	dsn, err := threads.DSNForFile(s.ThreadDB)
	if err != nil {
		return nil, err
	}
	store, err := threads.NewSQLiteStore(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open thread db %s", s.ThreadDB)
	}
	return store, nil
}

// Mirror returns the event bus when redis mirroring is enabled, nil
// otherwise.
func (a *App) Mirror() (*eventbus.Bus, error) {
	s, err := a.settings()
	if err != nil {
		return nil, err
	}
	if !s.Redis.Enabled {
		return nil, nil
	}
	return eventbus.New(s.Redis)
}
