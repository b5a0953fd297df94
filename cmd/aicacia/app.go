package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/config"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"github.com/fyrsmithlabs/aicacia/internal/services"
	"github.com/fyrsmithlabs/aicacia/internal/session"
	"github.com/fyrsmithlabs/aicacia/internal/telemetry"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
	"github.com/fyrsmithlabs/aicacia/internal/tui"
	"go.uber.org/zap"
)

var errNotLoggedIn = errors.New("not logged in, run `aicacia login` first")

// app holds everything a command needs, built from the configuration.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
	tokens *tokenstore.FileStore
	reg    services.Registry
	events *tui.Notifier
}

// open loads the configuration and wires the client stack. The full
// screen interface never logs to stderr since that would tear the display.
func (o *globalOptions) open(ctx context.Context, fullScreen bool) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigPath: o.configPath, EnvFile: o.envFile})
	if err != nil {
		return nil, err
	}
	if o.apiURL != "" {
		cfg.API.BaseURL = o.apiURL
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if fullScreen {
		cfg.Logging.Stderr = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg, err := logging.ConfigFrom(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.ConfigFrom(cfg.Telemetry))
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.LastError))
	}

	tokens, err := openTokens(ctx, cfg.Token.Path, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	clientOpts := []api.Option{api.WithLogger(logger), api.WithTelemetry(tel)}
	if d := cfg.API.Timeout.Duration(); d > 0 {
		clientOpts = append(clientOpts, api.WithTimeout(d))
	}
	client, err := api.NewClient(cfg.API.BaseURL, tokens, clientOpts...)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	events := tui.NewNotifier()
	reg, err := services.NewRegistry(services.Options{
		Client:              client,
		Tokens:              tokens,
		Logger:              logger,
		PageSize:            cfg.History.PageSize,
		ChatRefreshDelay:    cfg.Chat.ThreadRefreshDelay.Duration(),
		ChatRefreshAttempts: cfg.Chat.ThreadRefreshAttempts,
		OnSessionChange:     events.SessionChanged,
		OnChange:            events.Changed,
	})
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	logger.Debug(ctx, "client configured",
		zap.String("base_url", client.BaseURL()),
		zap.String("token_path", tokens.Path()),
		zap.Bool("full_screen", fullScreen))

	return &app{
		cfg:    cfg,
		logger: logger,
		tel:    tel,
		tokens: tokens,
		reg:    reg,
		events: events,
	}, nil
}

// Close stops background work and flushes telemetry and logs.
func (a *app) Close(ctx context.Context) {
	a.reg.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Close()
}

// openTokens opens the token file. A corrupted file is discarded so the
// user can sign in again.
func openTokens(ctx context.Context, path string, logger *logging.Logger) (*tokenstore.FileStore, error) {
	tokens, err := tokenstore.NewFileStore(path)
	if errors.Is(err, tokenstore.ErrCorrupted) {
		logger.Warn(ctx, "discarding corrupted token file", zap.String("path", path), zap.Error(err))
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, fmt.Errorf("failed to remove corrupted token file: %w", rmErr)
		}
		tokens, err = tokenstore.NewFileStore(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	return tokens, nil
}

// verified checks the stored token against the backend.
func (a *app) verified(ctx context.Context) (session.Snapshot, error) {
	sess := a.reg.Session()
	if !sess.Snapshot().LoggedIn() {
		return session.Snapshot{}, errNotLoggedIn
	}
	if err := sess.Verify(ctx); err != nil {
		if api.IsAuthRejected(err) {
			return session.Snapshot{}, errors.New("your session has expired, run `aicacia login` again")
		}
		return session.Snapshot{}, err
	}
	snap := sess.Snapshot()
	if !snap.LoggedIn() {
		return session.Snapshot{}, errNotLoggedIn
	}
	return snap, nil
}

// admin verifies the session and requires an administrator.
func (a *app) admin(ctx context.Context) error {
	snap, err := a.verified(ctx)
	if err != nil {
		return err
	}
	if !snap.IsAdmin() {
		return errors.New("this command requires an administrator account")
	}
	return nil
}
