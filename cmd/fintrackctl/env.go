package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/docstore"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// userFlag is the -user flag every subcommand takes.
type userFlag struct {
	user string
}

func (u *userFlag) register(f *flag.FlagSet) {
	f.StringVar(&u.user, "user", "", "user id (defaults to DEFAULT_USER_ID)")
}

// env is an open store bound to one user.
type env struct {
	cfg      *config.Config
	backend  *backend.BackendResult
	events   *amqp.Client
	scope    docstore.Scope
	svc      *services.Services
	currency *core.CurrencyFormatter
	logger   *log.Logger
}

// open loads configuration and opens the store. Events are published when
// AMQP_URL is set so repairs reach the worker like API changes do.
func (u *userFlag) open(ctx context.Context) (*env, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	userID := u.user
	if userID == "" {
		userID = cfg.DefaultUserID
	}
	if !core.ValidUserID(userID) {
		return nil, fmt.Errorf("invalid user id %q", userID)
	}

	currency, err := core.NewCurrencyFormatter(cfg.Currency)
	if err != nil {
		return nil, err
	}

	res, err := cli.InitStore(ctx, logger.Logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	events, err := cli.InitEventClient(logger.Logger, cfg)
	if err != nil {
		logger.Warn("AMQP unavailable, changes will not be published", "error", err)
		events = nil
	}

	scope := docstore.Scope{AppID: cfg.AppID, UserID: userID}
	return &env{
		cfg:      cfg,
		backend:  res,
		events:   events,
		scope:    scope,
		svc:      services.New(services.Deps{Store: res.Store, Events: cli.Publisher(events)}, scope),
		currency: currency,
		logger:   logger,
	}, nil
}

func (e *env) close() {
	if e.events != nil {
		_ = e.events.Close()
	}
	if e.backend.Cleanup == nil {
		return
	}
	if err := e.backend.Cleanup(); err != nil {
		e.logger.Error("Store close error", "error", err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
