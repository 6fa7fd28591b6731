package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/concordhq/concord/internal/api"
	"github.com/concordhq/concord/internal/auth"
	"github.com/concordhq/concord/internal/config"
	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/membership"
	"github.com/concordhq/concord/internal/realtime"
	"github.com/concordhq/concord/internal/store"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("error closing store")
		}
	}()

	oracle := membership.NewOracle(st)
	hub := realtime.NewHub(oracle, realtime.Options{
		MaxMessageSize: cfg.Limits.MaxMessageSize,
		MessageRate:    cfg.Limits.MessageRate,
		MessageBurst:   cfg.Limits.MessageBurst,
	})
	go hub.Run()

	tokens := auth.NewManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	hasher := auth.NewHasher(cfg.Security.BcryptCost)

	app := api.New(st, tokens, hasher, hub, cfg)
	server := api.NewHTTPServer(cfg.Server, app.Router())

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := api.ShutdownHTTPServer(ctx, server); err != nil {
		logging.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := hub.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		logging.Warn().Err(err).Msg("realtime shutdown incomplete")
	}
	return nil
}
