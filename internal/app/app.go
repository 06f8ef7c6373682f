// Package app orchestrates image translation: the cache-first workflow,
// out-of-memory retries and the message protocol the page talks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.aimuz.me/comictl/backend"
	"go.aimuz.me/comictl/cache"
	"go.aimuz.me/comictl/config"
	"go.aimuz.me/comictl/media"
)

// Options configures a Service.
type Options struct {
	// SettingsPath is the settings file. Empty means config.DefaultPath.
	SettingsPath string
	// CachePath is the badger directory. Empty keeps the cache in memory.
	CachePath string
	// RedisURL selects the Redis cache store instead of badger.
	RedisURL string
	// CacheCapacity overrides cache.DefaultCapacity when positive.
	CacheCapacity int

	// BackendTimeout bounds each HTTP request. Zero leaves it to the context.
	BackendTimeout time.Duration
	// Timeout is the soft per-image timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// Sender receives outbound messages. Required.
	Sender Sender
}

// Service wires the translation core together.
// Zero value is not useful; create via New.
type Service struct {
	settings *config.Store
	cache    *cache.Cache
	media    *media.Registry
	backend  *backend.Client

	state  *OrchestratorState
	orch   *Orchestrator
	retry  *RetryController
	outbox *Outbox
	router *Router
}

// New creates a Service. Call Shutdown when done.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Sender == nil {
		return nil, errors.New("app: sender required")
	}

	path := opts.SettingsPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	c, err := openCache(ctx, opts)
	if err != nil {
		return nil, err
	}

	s := &Service{
		settings: config.NewStore(path),
		cache:    c,
		media:    media.NewRegistry(media.WithCapacity(max(media.DefaultCapacity, 2*opts.CacheCapacity))),
		backend:  backend.NewClient(opts.BackendTimeout),
		state:    NewOrchestratorState(),
		outbox:   NewOutbox(opts.Sender),
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	s.orch = NewOrchestrator(Deps{
		State:      s.state,
		Settings:   s.settings,
		Cache:      s.cache,
		Backend:    s.backend,
		Media:      s.media,
		Dispatcher: s.outbox,
		Notifier:   s.outbox,
	}, WithTimeout(timeout))
	s.retry = NewRetryController(s.orch)
	s.router = NewRouter(s.orch, s.retry, s.settings, s.cache, s.outbox)

	slog.Info("service initialized", "settings", path, "cache", cacheLabel(opts))
	return s, nil
}

func openCache(ctx context.Context, opts Options) (*cache.Cache, error) {
	var copts []cache.Option
	if opts.CacheCapacity > 0 {
		copts = append(copts, cache.WithCapacity(opts.CacheCapacity))
	}

	if opts.RedisURL != "" {
		store, err := cache.DialRedisStore(ctx, opts.RedisURL, "")
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		return cache.New(store, copts...), nil
	}

	c, err := cache.Open(opts.CachePath, copts...)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return c, nil
}

func cacheLabel(opts Options) string {
	switch {
	case opts.RedisURL != "":
		return "redis"
	case opts.CachePath != "":
		return opts.CachePath
	default:
		return "memory"
	}
}

// Router returns the inbound message router.
func (s *Service) Router() *Router { return s.router }

// Orchestrator returns the translation orchestrator.
func (s *Service) Orchestrator() *Orchestrator { return s.orch }

// Retry returns the retry controller.
func (s *Service) Retry() *RetryController { return s.retry }

// Settings returns the settings store.
func (s *Service) Settings() *config.Store { return s.settings }

// Cache returns the result cache.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Media returns the image handle registry.
func (s *Service) Media() *media.Registry { return s.media }

// Shutdown waits for background work and releases resources.
func (s *Service) Shutdown() {
	s.router.Wait()
	if err := s.backend.Close(); err != nil {
		slog.Error("close backend client", "error", err)
	}
	if err := s.cache.Close(); err != nil {
		slog.Error("close cache", "error", err)
	}
}
