package config

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/ratelimit"
	"github.com/stephnangue/nxauth/service/coral"
	"github.com/stephnangue/nxauth/storage"
	"github.com/stephnangue/nxauth/users"
)

// ErrAlreadyInitialized is returned when a second Runtime is
// constructed in the same process
var ErrAlreadyInitialized = errors.New("runtime already initialized for this process")

// initialized guards against double construction. The Runtime replaces
// what used to be scattered process-global state; the guard lives in
// the constructor so misuse fails loudly instead of silently rewiring
// components.
var initialized atomic.Bool

// Runtime is the one process-wide context. It is built once at process
// entry and passed by reference to everything that needs it.
type Runtime struct {
	Config  *Config
	Log     logger.Logger
	Store   storage.Storage
	Limiter *ratelimit.Limiter
	Manager *credential.Manager
	Users   *users.Registry

	ClientConfig *api.Config
}

// NewRuntime wires the logger, storage backend, rate limiter and
// credential manager from the config. Constructing a second Runtime in
// the same process returns ErrAlreadyInitialized.
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	if !initialized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	log := logger.NewZerologLogger(loggerConfig(cfg))

	store, err := buildStorage(cfg)
	if err != nil {
		initialized.Store(false)
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		initialized.Store(false)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	requests, window := 0, time.Duration(0)
	if cfg.RateLimit != nil {
		requests = cfg.RateLimit.Requests
		window = time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	}
	limiter := ratelimit.NewLimiter(requests, window, log.WithSubsystem("ratelimit"))

	clientConfig := api.DefaultConfig()
	if cfg.UserAgent != "" {
		clientConfig.UserAgent = cfg.UserAgent
	}
	if cfg.ClientRateLimit != "" {
		rateLimit, burst, err := api.ParseRateLimit(cfg.ClientRateLimit)
		if err != nil {
			initialized.Store(false)
			return nil, err
		}
		clientConfig.Limiter = rate.NewLimiter(rate.Limit(rateLimit), burst)
	}

	manager, err := credential.NewManager(store, limiter, clientConfig, log.WithSubsystem("credential"))
	if err != nil {
		initialized.Store(false)
		return nil, err
	}

	registry, err := buildRegistry(cfg, clientConfig, store, log)
	if err != nil {
		initialized.Store(false)
		return nil, err
	}

	return &Runtime{
		Config:       cfg,
		Log:          log,
		Store:        store,
		Limiter:      limiter,
		Manager:      manager,
		Users:        registry,
		ClientConfig: clientConfig,
	}, nil
}

// buildRegistry wires the per-user entity registry. Commands and
// monitors resolving the same account share one OIDC wrapper and its
// token and profile caches instead of each constructing their own.
func buildRegistry(cfg *Config, clientConfig *api.Config, store storage.Storage, log logger.Logger) (*users.Registry, error) {
	address := cfg.ServiceAddress("account")
	if address == "" {
		address = coral.Issuer
	}
	accountCfg := *clientConfig
	accountCfg.Address = address
	caller, err := api.NewClient(&accountCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build account authority client: %w", err)
	}

	registry := users.NewRegistry()
	factory := users.AccountOIDCFactory(store, caller, coral.ClientID, log.WithSubsystem("users"))
	if err := registry.RegisterKind(users.KindAccountOIDC, factory); err != nil {
		return nil, err
	}
	return registry, nil
}

// Close releases the runtime's resources and clears the process guard
func (r *Runtime) Close() error {
	r.Manager.Stop()
	err := r.Store.Stop()
	if logErr := r.Log.Close(); err == nil {
		err = logErr
	}
	initialized.Store(false)
	return err
}

func loggerConfig(cfg *Config) *logger.Config {
	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLogLevel(cfg.LogLevel)
	logCfg.Format = logger.ParseOutputFormat(cfg.LogFormat)
	if cfg.LogFile != "" {
		logCfg.FileConfig = &logger.FileConfig{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		}
	}
	return logCfg
}

func buildStorage(cfg *Config) (storage.Storage, error) {
	block := cfg.Storage
	if block == nil {
		block = DefaultConfig().Storage
	}
	switch block.Type {
	case "inmem":
		return storage.NewMemoryStorage(), nil
	case "file":
		return storage.NewFileStorage(block.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q, expected inmem or file", block.Type)
	}
}
