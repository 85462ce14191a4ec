package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Name is the name of the application that the logger is for. It is appended
// to every log line so that aggregated logs can be filtered by service.
type Name string

const (
	// KeyError is the key used for error values.
	KeyError = `err`

	// KeyDal is the key used for the data access layer name.
	KeyDal = `dal`

	// KeyHandler is the key used for the interaction handler name.
	KeyHandler = `handler`

	// KeyGuild is the key used for the guild ID.
	KeyGuild = `guild_id`

	// KeyUser is the key used for the user ID.
	KeyUser = `user_id`

	// keyAppName is the key used for the application name.
	keyAppName = `app`
)

// Config is the configuration for a logger.
type Config struct {
	// name is the application name.
	name Name

	// level is the minimum level that will be logged.
	level slog.Leveler
}

// NewConfig creates a new logging config for the named application.
func NewConfig(name Name) *Config {
	level := slog.LevelInfo
	if os.Getenv("LOG_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return &Config{
		name:  name,
		level: level,
	}
}

// CommonLogger returns the logger that all services share: JSON output on
// stdout with the application name attached. The returned logger is also
// installed as the slog default.
func CommonLogger(c *Config) (*slog.Logger, error) {
	if c == nil {
		return nil, fmt.Errorf("nil logging config")
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: c.level,
	})

	l := slog.New(h).With(slog.String(keyAppName, string(c.name)))
	slog.SetDefault(l)
	return l, nil
}
