package main

import (
	"context"
	"fmt"
	"time"

	"debtflow/internal/api"
	"debtflow/internal/config"
	"debtflow/internal/gateway"
	"debtflow/internal/logging"
	"debtflow/internal/persist"
	"debtflow/internal/session"
	"debtflow/internal/submit"

	"go.uber.org/zap"
)

// app holds the wired collaborators for one command invocation.
type app struct {
	cfg        *config.Config
	client     *api.Client
	backend    persist.Backend
	persist    *persist.Manager
	recovery   *gateway.RecoveryStore
	reconciler *gateway.Reconciler
	inbox      *gateway.Inbox
	callback   *gateway.CallbackServer
	listening  bool
	watcher    *config.Watcher
}

// newApp wires the API client, the draft backend and the gateway pieces.
// The callback server is created but not started.
func newApp(ctx context.Context, c *config.Config) (*app, error) {
	client, err := api.NewClient(api.Config{
		BaseURL:   c.API.BaseURL,
		Token:     c.API.Token,
		Timeout:   c.GetAPITimeout(),
		UserAgent: c.Name + "/" + c.Version,
	})
	if err != nil {
		return nil, err
	}

	backend, err := persist.Open(ctx, c.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s draft storage: %w", c.Storage.Backend, err)
	}

	a := &app{
		cfg:     c,
		client:  client,
		backend: backend,
		persist: persist.NewManager(backend.Slot(persist.SnapshotSlot), persist.WithWindow(c.GetDebounceWindow())),
		inbox:   gateway.NewInbox(),
	}
	a.recovery = gateway.NewRecoveryStore(backend.Slot(persist.GatewayReturnSlot))
	a.reconciler = gateway.NewReconciler(client, a.recovery,
		gateway.WithMaxRecoveryAge(c.GetMaxRecoveryAge()),
		gateway.WithCheckTimeout(c.GetAPITimeout()),
	)
	a.callback = gateway.NewCallbackServer(c.Gateway.CallbackAddr, a.inbox)

	logging.Boot("wired: api=%s storage=%s window=%s", c.API.BaseURL, backend.Name(), c.GetDebounceWindow())
	return a, nil
}

// controller builds a wizard session over the app's collaborators.
func (a *app) controller(notifier session.Notifier) (*session.Controller, error) {
	scfg := session.DefaultConfig()
	scfg.Me = submit.Party{Email: a.cfg.API.UserEmail, Name: a.cfg.API.UserName}
	scfg.MonthEndPolicy = a.cfg.MonthEndPolicy()

	deps := session.Deps{
		Movements:   a.client,
		Wallets:     a.client,
		PixKeys:     a.client,
		Reconciler:  a.reconciler,
		Persistence: a.persist,
		Inbox:       a.inbox,
		Notifier:    notifier,
	}
	if a.listening {
		deps.Callback = a.callback
	}
	return session.New(deps, scfg)
}

// listen starts the gateway callback server. Without it the gateway can
// still be connected, but the return trip is only noticed on the next open.
func (a *app) listen() error {
	if err := a.callback.Start(); err != nil {
		return err
	}
	a.listening = true
	logging.Gateway("callback server listening on %s", a.callback.URL())
	return nil
}

// watchConfig hot-reloads the debounce window and log levels.
func (a *app) watchConfig(ctx context.Context, path string) {
	w, err := config.NewWatcher(path, a.cfg)
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
		return
	}
	w.Subscribe(func(c *config.Config) {
		a.persist.SetWindow(c.GetDebounceWindow())
		logging.Configure(c.Logging.Settings())
		logging.Config("config reloaded: window=%s level=%s", c.GetDebounceWindow(), c.Logging.Level)
	})
	if err := w.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", zap.Error(err))
		return
	}
	a.watcher = w
}

func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.listening {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.callback.Shutdown(ctx)
		cancel()
	}
	a.persist.Close()
	if err := a.backend.Close(); err != nil {
		logging.Get(logging.CategoryPersist).Warn("failed to close backend: %v", err)
	}
}
