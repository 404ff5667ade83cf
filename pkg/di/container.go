// Package di wires the application's components together.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"chatmallu/client/ai"
	"chatmallu/client/internal/service"
	"chatmallu/client/internal/state"
	"chatmallu/client/internal/storage"
	"chatmallu/client/internal/ws"
	"chatmallu/client/pkg/cache"
	"chatmallu/client/pkg/config"
	"chatmallu/client/pkg/health"
	"chatmallu/client/pkg/logger"
	"chatmallu/client/shared/observability"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const serviceName = "chatmallu-client"

// Container holds all the dependencies for the application
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	KV    storage.KV
	Store *state.Store
	AI    *ai.Client
	Hub   *ws.Hub

	Runtime     *service.Runtime
	Characters  *service.CharacterService
	Chats       *service.ChatService
	Groups      *service.GroupService
	Suggestions *service.SuggestionService
	Settings    *service.SettingsService

	Health *health.Checker
	Cache  *cache.Cache

	Metrics        *observability.Metrics
	MetricsHandler http.Handler

	meterProvider   *sdkmetric.MeterProvider
	shutdownTracing func(context.Context) error
}

type options struct {
	kv      storage.KV
	sleeper service.Sleeper
	log     *logger.Logger
}

// Option customises New, mostly for tests.
type Option func(*options)

// WithKV uses kv instead of the storage backend named by the config.
func WithKV(kv storage.KV) Option {
	return func(o *options) { o.kv = kv }
}

// WithSleeper replaces the orchestrator's pacing delays.
func WithSleeper(s service.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// LoggerConfig derives the logger configuration from cfg.
func LoggerConfig(cfg *config.Config) logger.Config {
	lc := logger.DefaultConfig()
	if cfg.Logging.Level != "" {
		lc.Level = cfg.Logging.Level
	}
	lc.JSON = cfg.Logging.Format != "text"
	return lc
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.log
	if log == nil {
		log = logger.New(LoggerConfig(cfg))
	}
	c := &Container{Config: cfg, Logger: log}

	if cfg.Observability.Tracing {
		shutdown, err := observability.SetupTracing(serviceName, os.Stderr)
		if err != nil {
			return nil, err
		}
		c.shutdownTracing = shutdown
	}
	if cfg.Observability.Metrics {
		mp, handler, err := observability.SetupPrometheusMetrics()
		if err != nil {
			return nil, err
		}
		metrics, err := observability.NewMetrics(mp)
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		c.meterProvider, c.MetricsHandler, c.Metrics = mp, handler, metrics
	}

	c.KV = o.kv
	if c.KV == nil {
		kv, err := storage.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		c.KV = kv
	}

	store, err := state.Open(ctx, state.NewKVRepository(c.KV))
	if err != nil {
		_ = c.KV.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	c.Store = store

	fallback := cfg.Inference.BaseURL
	c.AI = ai.NewClient(fallback,
		ai.WithBaseURLResolver(func() string {
			if u := store.Settings().APIBaseURL; u != "" {
				return u
			}
			return fallback
		}),
		ai.WithHealthTimeout(cfg.Inference.HealthTimeout),
	)

	c.Hub = ws.NewHub(log)
	c.Runtime = service.NewRuntime(store, c.AI,
		service.WithLogger(log),
		service.WithPublisher(c.Hub),
		service.WithMetrics(c.Metrics),
		service.WithSleeper(o.sleeper),
	)
	c.Suggestions = service.NewSuggestionService(c.Runtime)
	c.Chats = service.NewChatService(c.Runtime, c.Suggestions)
	c.Groups = service.NewGroupService(c.Runtime, c.Suggestions)
	c.Characters = service.NewCharacterService(c.Runtime)
	c.Settings = service.NewSettingsService(c.Runtime)

	c.Hub.OnActiveChat(func(chatID string) {
		if err := c.Runtime.SetActiveChat(context.Background(), chatID); err != nil {
			log.LogError(err, "set active chat", "chat_id", chatID)
		}
	})

	c.Health = health.NewChecker(log, cfg.Inference.HealthInterval, cfg.Inference.HealthTimeout)
	c.Health.RegisterStorageCheck(func(ctx context.Context) error {
		return storage.Ping(ctx, c.KV)
	})
	c.Health.RegisterInferenceCheck(c.AI)
	c.Health.OnChange(func(comp health.Component) {
		if comp.Name == health.ComponentInference {
			c.Hub.Publish(ws.EventConnection, health.ConnectionOf(comp))
		}
	})

	if cfg.Cache.Enabled {
		c.Cache = cache.New(cache.OptionsFrom(cfg))
	}

	return c, nil
}

// Close stops background work and releases resources.
func (c *Container) Close(ctx context.Context) error {
	c.Runtime.Shutdown()

	var errs []error
	if c.shutdownTracing != nil {
		errs = append(errs, c.shutdownTracing(ctx))
	}
	if c.meterProvider != nil {
		errs = append(errs, c.meterProvider.Shutdown(ctx))
	}
	errs = append(errs, c.KV.Close())
	return errors.Join(errs...)
}
