package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/normanking/cortexpresence/internal/bus"
	"github.com/normanking/cortexpresence/internal/clock"
	"github.com/normanking/cortexpresence/internal/config"
	"github.com/normanking/cortexpresence/internal/engine"
	"github.com/normanking/cortexpresence/internal/logging"
	"github.com/normanking/cortexpresence/internal/transport"
	"github.com/spf13/cobra"
)

var _ transport.InputHandler = (*engine.Engine)(nil)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the presence engine and WebSocket hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		LogDir:     cfg.Dir,
		Level:      logging.LogLevel(cfg.Level),
		MaxHistory: cfg.MaxHistory,
		Console:    cfg.Console,
	})
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("presenced")

	eventBus := bus.NewEventBus()
	eng, err := engine.New(cfg, eventBus, clock.Real{}, logger.Zerolog())
	if err != nil {
		return err
	}
	eng.Start()
	defer eng.Close()

	hub := transport.NewHub(eventBus, eng, transport.Config{AllowedOrigins: cfg.Server.AllowedOrigins}, logger.Zerolog())
	hub.Start()
	defer hub.Close()

	mux := http.NewServeMux()
	hub.Register(mux)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.Status())
	})
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeJSON(w, logger.History(limit))
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Source != "" {
		watcher, err := config.NewWatcher(cfg.Source, logger.Zerolog(), func(c *config.Config) {
			eng.ApplyPreferences(c.Preferences)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config hot reload disabled")
		} else if err := watcher.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Config hot reload disabled")
		} else {
			defer watcher.Stop()
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("config", cfg.Source).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
