package api

import (
	"context"
	"net/http"

	"github.com/concordhq/concord/internal/config"
	"github.com/concordhq/concord/internal/logging"
)

// NewHTTPServer builds the HTTP server with production timeout settings.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// ShutdownHTTPServer gracefully stops the server, waiting up to the context
// deadline for active connections to drain.
func ShutdownHTTPServer(ctx context.Context, server *http.Server) error {
	if err := server.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("http server shutdown error")
		return err
	}
	logging.Info().Msg("http server shutdown complete")
	return nil
}
