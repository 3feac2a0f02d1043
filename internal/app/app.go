// Package app wires the configuration, storage, services and HTTP layer
// into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isdelr/rewear-be/internal/api"
	"github.com/isdelr/rewear-be/internal/auth"
	"github.com/isdelr/rewear-be/internal/config"
	"github.com/isdelr/rewear-be/internal/database"
	"github.com/isdelr/rewear-be/internal/jobs"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/metrics"
	"github.com/isdelr/rewear-be/internal/services"
	"github.com/isdelr/rewear-be/internal/websocket"
)

const defaultShutdownTimeout = 10 * time.Second

// ErrNotConfigured is returned by Run on an App that is already running
// or was not created with New.
var ErrNotConfigured = errors.New("app is not in the configured state")

// State is the lifecycle stage of an App.
type State int32

const (
	StateUninitialized State = iota
	StateConfigured
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	}
	return "uninitialized"
}

// App is the server process.
type App struct {
	cfg   *config.Config
	log   *logger.Logger
	state atomic.Int32

	ready     chan struct{}
	readyOnce sync.Once
	addr      string
}

// New returns a configured App.
func New(cfg *config.Config, log *logger.Logger) *App {
	a := &App{
		cfg:   cfg,
		log:   log,
		ready: make(chan struct{}),
	}
	a.state.Store(int32(StateConfigured))
	return a
}

// State returns the current lifecycle stage.
func (a *App) State() State {
	return State(a.state.Load())
}

// Ready is closed once the HTTP listener is bound, or when Run returns
// without ever binding it.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Addr waits for Ready and returns the bound listener address. It is empty
// when Run failed before listening.
func (a *App) Addr() string {
	<-a.ready
	return a.addr
}

func (a *App) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// Run opens the database, applies migrations, starts the background
// workers and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(StateConfigured), int32(StateRunning)) {
		return ErrNotConfigured
	}
	defer a.markReady()

	db, err := database.Open(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseURL, a.log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	m := metrics.New()

	// The hub outlives the HTTP server so in-flight handlers can still publish.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(a.log, m.ClientsConnected)
	go hub.Run(hubCtx)

	events := services.NewEventService(db)
	users := services.NewUserService(db, events, a.log)
	items := services.NewItemService(db, events, a.log)
	swaps := services.NewSwapService(db, events, hub, m, a.log)
	admin := services.NewAdminService(db, items, users, events)

	if a.cfg.AdminEmail != "" && a.cfg.AdminPassword != "" {
		if _, err := users.EnsureAdmin(ctx, a.cfg.AdminEmail, a.cfg.AdminPassword); err != nil {
			return fmt.Errorf("failed to seed admin account: %w", err)
		}
	}

	if a.cfg.SweeperEnabled() {
		sweeper, err := jobs.NewSwapSweeper(swaps, events, a.cfg.SwapProposalTTL, a.cfg.SwapSweepSchedule, a.log)
		if err != nil {
			return err
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	router := api.NewRouter(api.Deps{
		Config:  a.cfg,
		Log:     a.log,
		Tokens:  auth.NewTokenManager(a.cfg.JWTSecret, a.cfg.JWTIssuer, a.cfg.TokenTTL),
		Metrics: m,
		Hub:     hub,
		Users:   users,
		Items:   items,
		Swaps:   swaps,
		Admin:   admin,
		Events:  events,
	})

	return a.serve(ctx, router)
}

func (a *App) serve(ctx context.Context, handler http.Handler) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Addr(), err)
	}
	a.addr = ln.Addr().String()
	a.markReady()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.addr).Str("env", a.cfg.Env).Msg("server starting")
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down server")

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	a.log.Info().Msg("server exited")
	return nil
}
