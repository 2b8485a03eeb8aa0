package app

import (
	"context"
	"net/http"
	"time"

	"chatsync/pkg/api"
	"chatsync/pkg/logger"
)

// startHTTP builds the handler chain, starts the server in a goroutine
// and returns a channel carrying any fatal server error. The server is
// shut down gracefully when ctx is canceled.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	handler := api.NewRouter(a.sec, a.gw)
	srv := &http.Server{Addr: a.cfg.Server.Addr(), Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn("http_shutdown_error", "error", err)
		}
	}()
	return errCh
}
