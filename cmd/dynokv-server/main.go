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

// dynokv-server is the process entry point: a "serve" subcommand that runs
// the DynamoDB-compatible wire listener plus a Prometheus /metrics
// endpoint, and a "shell" subcommand that opens its own engine on the
// configured data directory and runs an interactive REPL against it for
// ad-hoc inspection.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dc0d/onexit"
	"github.com/spf13/cobra"

	"github.com/launix-de/dynokv/internal/config"
	"github.com/launix-de/dynokv/internal/engine"
	"github.com/launix-de/dynokv/internal/log"
	"github.com/launix-de/dynokv/internal/metrics"
	"github.com/launix-de/dynokv/internal/wire"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dynokv-server",
	Short: "dynokv-server runs a single-process, disk-backed, DynamoDB-wire-compatible key-value store",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit structured JSON logs instead of the console format")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.LogJSON = true
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the wire listener and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
		lg := log.WithComponent("main")

		eng, err := engine.Open(cfg)
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		var closeOnce sync.Once
		closeEngine := func() {
			closeOnce.Do(func() {
				if err := eng.Close(); err != nil {
					lg.Error().Err(err).Msg("closing engine")
				}
			})
		}
		// onexit.Register is the teacher's own idiom for running cleanup on
		// SIGINT/SIGTERM (storage/settings.go's InitSettings); it catches
		// paths that skip the graceful-shutdown branch below, such as a
		// direct os.Exit elsewhere in the process.
		onexit.Register(closeEngine)
		defer closeEngine()

		mux := http.NewServeMux()
		mux.Handle("/", wire.New(eng))
		mux.Handle("/metrics", metrics.Handler())

		addr := fmt.Sprintf(":%d", cfg.Port)
		srv := &http.Server{Addr: addr, Handler: mux}

		serveErr := make(chan error, 1)
		go func() {
			lg.Info().Str("addr", addr).Msg("listening")
			serveErr <- srv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serveErr:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("serving: %w", err)
			}
		case sig := <-sigCh:
			lg.Info().Str("signal", sig.String()).Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				lg.Error().Err(err).Msg("graceful shutdown failed")
			}
		}

		return nil
	},
}
