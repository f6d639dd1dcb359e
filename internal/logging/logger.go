package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Dev gets a human readable console writer,
// every other env emits JSON lines.
func New(level, env string) zerolog.Logger {
	return NewWithWriter(level, env, os.Stdout)
}

func NewWithWriter(level, env string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	w := out
	if env == "dev" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Str("env", env).Logger()
}
