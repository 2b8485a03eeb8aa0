// Package app wires the engine together: storage, membership, log,
// fanout, gateway and the HTTP surface, with a clean startup and
// shutdown order.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"chatsync/pkg/auth"
	"chatsync/pkg/banner"
	"chatsync/pkg/config"
	"chatsync/pkg/fanout"
	"chatsync/pkg/gateway"
	"chatsync/pkg/logger"
	"chatsync/pkg/membership"
	"chatsync/pkg/msglog"
	"chatsync/pkg/presence"
	"chatsync/pkg/store"
	"chatsync/pkg/subs"
)

// App holds the assembled components and their lifecycle.
type App struct {
	cfg     *config.Config
	version string

	reg        *subs.Registry
	dispatcher *fanout.Dispatcher
	gw         *gateway.Gateway
	sec        auth.SecConfig

	cancelPresence context.CancelFunc
}

// New opens the store and wires the components. It does not listen;
// call Run to serve until the context is canceled.
func New(cfg *config.Config, version string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger.Init(cfg.Logging.Level)

	if err := store.Open(cfg.Server.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Server.DBPath, err)
	}

	msglog.SetRetry(cfg.Log.RetryAttempts, time.Duration(cfg.Log.RetryBackoff))
	msglog.SetPageLimits(cfg.Log.PageLimit, cfg.Log.DefaultPageLimit)

	a := &App{cfg: cfg, version: version}
	a.sec = auth.FromConfig(cfg.Security)

	// live wiring: ban/leave tears down subscriptions, commits push
	// through the dispatcher
	a.reg = subs.NewRegistry()
	membership.SetRevocationHook(a.reg.DropMember)
	a.dispatcher = fanout.New(a.reg, cfg.Fanout.Workers, cfg.Fanout.QueueSize)
	msglog.SetPublisher(a.dispatcher.Publish)

	a.gw = gateway.New(a.reg, a.sec, cfg.WebSocket, cfg.Fanout.ConnBuffer)
	return a, nil
}

// Run starts the dispatcher, presence sweeper and HTTP server, and
// blocks until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start()

	cancel, err := presence.Start(ctx, a.cfg.Presence)
	if err != nil {
		return err
	}
	a.cancelPresence = cancel

	banner.Print(a.cfg.Server.Addr(), a.cfg.Server.DBPath, a.version)

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases resources in reverse startup order.
func (a *App) Close() {
	if a.cancelPresence != nil {
		a.cancelPresence()
	}
	a.dispatcher.Stop()
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Sync()
}

func validateConfig(cfg *config.Config) error {
	if cfg.Server.DBPath == "" {
		return fmt.Errorf("server.db_path is required")
	}
	if len(cfg.Security.APIKeys.Backend)+len(cfg.Security.APIKeys.Frontend)+len(cfg.Security.APIKeys.Admin) == 0 {
		return fmt.Errorf("at least one api key must be configured")
	}
	// backend keys double as signing keys, so frontend-only deployments
	// must configure signing secrets explicitly
	if len(cfg.Security.SigningKeys) == 0 && len(cfg.Security.APIKeys.Backend) == 0 {
		return fmt.Errorf("signing_keys are required when no backend keys are configured")
	}
	return nil
}
