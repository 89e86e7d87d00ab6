package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Settings struct {
	Level      string
	Format     string // "text" or "json"
	File       string // empty means stderr
	WithCaller bool
	// Quiet discards output when no file is set. The TUI uses it so logs
	// never draw over the screen.
	Quiet bool
}

var closer io.Closer

// Init configures the global zerolog logger. It can be called again once
// flags are parsed; a previously opened log file is closed.
func Init(s Settings) error {
	level := zerolog.InfoLevel
	if s.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s.Level))
		if err != nil {
			return errors.Wrapf(err, "parse log level %q", s.Level)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	var next io.Closer
	switch {
	case s.File != "":
		lj := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out, next = lj, lj
	case s.Quiet:
		out = io.Discard
	}

	switch s.Format {
	case "", "text":
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    s.File != "",
			TimeFormat: time.RFC3339,
		}
	case "json":
	default:
		return errors.Errorf("unknown log format %q", s.Format)
	}

	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	if closer != nil {
		_ = closer.Close()
	}
	closer = next
	return nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}
