// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"arbscan/internal/config"
	"arbscan/internal/di"
	"arbscan/internal/logger"
	"arbscan/internal/ratelimit"
)

// Monolith is the main application container providing access to shared
// infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Governor() *ratelimit.Governor
	Services() di.ServiceRegistry
}

// Module represents a bounded context that can register services and
// start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	governor  *ratelimit.Governor
	container di.Container
}

// New creates a new Monolith instance with the shared rate governor
// built from the per-source limits in cfg.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	govCfg := ratelimit.GovernorConfig{
		Sources:     make(map[string]ratelimit.SourceLimit, len(cfg.Sources)),
		Default:     ratelimit.DefaultGovernorConfig().Default,
		BaseBackoff: cfg.Governor.BaseBackoff,
		MaxBackoff:  cfg.Governor.MaxBackoff,
		Multiplier:  cfg.Governor.Multiplier,
		MaxRetries:  cfg.Governor.MaxRetries,
	}
	for name, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		govCfg.Sources[name] = ratelimit.SourceLimit{
			RatePerSec: src.RatePerSec,
			Burst:      src.Burst,
		}
	}
	governor := ratelimit.NewGovernor(govCfg)

	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("governor", governor)

	return &app{
		config:    cfg,
		logger:    log,
		governor:  governor,
		container: container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Governor() *ratelimit.Governor {
	return a.governor
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
