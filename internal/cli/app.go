package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/JonMunkholm/rulesync/internal/config"
	"github.com/JonMunkholm/rulesync/internal/core"
	"github.com/JonMunkholm/rulesync/internal/lock"
	"github.com/JonMunkholm/rulesync/internal/logging"
	"github.com/JonMunkholm/rulesync/internal/store/postgres"
	"github.com/JonMunkholm/rulesync/internal/store/sqlite"
)

// backend is a row store the CLI can provision and close.
type backend interface {
	core.Store
	EnsureSchema(ctx context.Context, schemas []core.Schema) error
	Close() error
}

// app is the wiring shared by commands that touch the database.
type app struct {
	cfg     *config.Config
	store   backend
	service *core.Service
	closers []func() error
}

// openApp loads configuration, sets up logging and opens the configured
// store and lock.
func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadFrom(opts.getenv)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}

	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Format, logOut)
	slog.Debug("configuration loaded", "config", cfg.String())

	policy, err := core.ParseDuplicatePolicy(cfg.Sync.DuplicatePolicy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}

	st, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	a := &app{cfg: cfg, store: st, closers: []func() error{st.Close}}

	var locker core.Locker
	if cfg.Lock.Distributed() {
		rl, err := lock.NewRedisLocker(cfg.Lock.RedisURL, cfg.Lock.TTL, cfg.Lock.Prefix)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "connect lock server", err)
		}
		a.closers = append(a.closers, rl.Close)
		locker = rl
	} else {
		locker = lock.NewLocalLocker()
	}

	a.service = core.NewService(st, core.Options{
		Locker:         locker,
		Policy:         policy,
		SyncTimeout:    cfg.Sync.Timeout,
		RequireVersion: cfg.Sync.RequireVersion,
	})
	return a, nil
}

func openBackend(ctx context.Context, cfg config.DatabaseConfig) (backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg)
	case config.DriverSQLite:
		return sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// Close releases the store and lock connections in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
