package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/comictl/internal/types"
)

// ErrUnknownAction is returned for messages the router does not handle.
var ErrUnknownAction = errors.New("unknown action")

// CacheAdmin is the popup's view of the result cache.
type CacheAdmin interface {
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// SettingsWriter persists a full settings snapshot.
type SettingsWriter interface {
	SettingsStore
	Save(s types.Settings) error
}

// Router handles inbound messages. Translation requests run in the
// background and are answered immediately.
type Router struct {
	orch     *Orchestrator
	retry    *RetryController
	settings SettingsWriter
	cache    CacheAdmin // may be nil
	outbox   *Outbox

	wg sync.WaitGroup
}

// NewRouter creates a Router.
func NewRouter(orch *Orchestrator, retry *RetryController, settings SettingsWriter, cache CacheAdmin, outbox *Outbox) *Router {
	return &Router{
		orch:     orch,
		retry:    retry,
		settings: settings,
		cache:    cache,
		outbox:   outbox,
	}
}

// Handle dispatches msg by action.
func (r *Router) Handle(ctx context.Context, msg Message) (Reply, error) {
	switch msg.Action {
	case ActionTranslateImage:
		if msg.ImageURL == "" {
			return Reply{}, errors.New("translate image: missing imageUrl")
		}
		req := Request{
			Locator: msg.ImageURL,
			Target:  types.Target{Locator: msg.ImageURL, Element: msg.ImageElement},
			Manual:  msg.Manual,
		}
		r.background(ctx, func(ctx context.Context) {
			_, _ = r.retry.Translate(ctx, req)
		})
		return Reply{Success: true}, nil

	case ActionTranslateBatch:
		if len(msg.ImageURLs) == 0 {
			return Reply{}, errors.New("translate batch: no imageUrls")
		}
		if r.orch.state.Batching() {
			r.outbox.Notify(ctx, shortNotice(noticeBatchBusy))
			return Reply{Error: ErrBatchInProgress.Error()}, nil
		}
		locators := append([]string(nil), msg.ImageURLs...)
		r.background(ctx, func(ctx context.Context) {
			_, _ = r.retry.TranslateBatch(ctx, locators)
		})
		return Reply{Success: true}, nil

	case ActionGetSettings:
		s, err := r.settings.Load()
		if err != nil {
			return Reply{}, fmt.Errorf("get settings: %w", err)
		}
		return Reply{Success: true, Settings: &s}, nil

	case ActionSaveSettings:
		if msg.Settings == nil {
			return Reply{}, errors.New("save settings: missing settings")
		}
		if err := r.settings.Save(*msg.Settings); err != nil {
			return Reply{}, fmt.Errorf("save settings: %w", err)
		}
		r.outbox.Broadcast(ctx, Message{Action: ActionReloadSettings})
		return Reply{Success: true}, nil

	case ActionApplyCacheOnly:
		applied, err := r.orch.ApplyCache(ctx, msg.ImageURL, types.Target{Locator: msg.ImageURL, Element: msg.ImageElement})
		if err != nil {
			slog.Error("apply cache", "locator", msg.ImageURL, "error", err)
		}
		return Reply{Success: true, Applied: &applied}, nil

	case ActionUpdateProcessIndicator:
		r.outbox.Notify(ctx, Notice{
			Text:     msg.Text,
			AutoHide: msg.AutoHide,
			Duration: time.Duration(msg.Duration) * time.Millisecond,
		})
		return Reply{Success: true}, nil

	case ActionHideProcessIndicator:
		r.outbox.Hide(ctx)
		return Reply{Success: true}, nil

	case ActionClearCache:
		if r.cache == nil {
			return Reply{Success: true}, nil
		}
		if err := r.cache.Clear(ctx); err != nil {
			return Reply{}, err
		}
		return Reply{Success: true}, nil

	case ActionCacheStats:
		n := 0
		if r.cache != nil {
			var err error
			if n, err = r.cache.Len(ctx); err != nil {
				return Reply{}, fmt.Errorf("cache stats: %w", err)
			}
		}
		return Reply{
			Success:   true,
			CacheSize: &n,
			InFlight:  r.orch.state.InFlight(),
			Batching:  r.orch.state.Batching(),
		}, nil

	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
}

// Wait blocks until background translations started by Handle finish.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) background(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Go(func() { fn(ctx) })
}
