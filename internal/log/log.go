/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package log is the process-wide structured logger. Every core component
// logs through a component child logger rather than fmt.Println.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global base logger, set up by Init.
var Logger zerolog.Logger

// Config controls the global logger's level and output format.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	JSON   bool
	Output io.Writer
}

// Init sets up the global logger. Safe to call once at process start.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.JSON {
		Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// Usable before Init runs (e.g. in tests), at info level to stderr.
	Init(Config{Level: "info"})
}

// WithComponent returns a child logger tagging every entry with component,
// e.g. log.WithComponent("coordinator"), log.WithComponent("shardstore").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithShard returns a child logger tagging every entry with the shard index.
func WithShard(component string, shard int) zerolog.Logger {
	return Logger.With().Str("component", component).Int("shard", shard).Logger()
}
