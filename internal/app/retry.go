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
	"go.aimuz.me/comictl/internal/types"
)

// MaxRetries bounds how many times the inpainting size is reduced for one request.
const MaxRetries = 3

// DefaultRetryDelay is the pause before resubmitting after a reduction.
const DefaultRetryDelay = time.Second

var errNoReduction = errors.New("no smaller inpainting size")

// RetryController retries out-of-memory failures with a smaller
// inpainting size and reports progress through notices.
type RetryController struct {
	orch     *Orchestrator
	settings SettingsStore
	cache    ResultCache
	notify   Notifier

	delay time.Duration
	sleep func(context.Context, time.Duration) error
}

// RetryOption configures a RetryController.
type RetryOption func(*RetryController)

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) RetryOption {
	return func(rc *RetryController) { rc.delay = d }
}

// WithRetrySleep replaces the sleep between attempts.
func WithRetrySleep(fn func(context.Context, time.Duration) error) RetryOption {
	return func(rc *RetryController) { rc.sleep = fn }
}

// NewRetryController wraps orch. It shares orch's settings, cache and notifier.
func NewRetryController(orch *Orchestrator, opts ...RetryOption) *RetryController {
	rc := &RetryController{
		orch:     orch,
		settings: orch.settings,
		cache:    orch.cache,
		notify:   orch.notify,
		delay:    DefaultRetryDelay,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Translate runs one image through the orchestrator, degrading the
// inpainting size on out-of-memory failures.
func (rc *RetryController) Translate(ctx context.Context, req Request) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		rc.notify.Notify(ctx, persistentNotice(noticeTranslating))

		out, err := rc.orch.Translate(ctx, req)
		if err == nil {
			if !out.Rejected {
				rc.notify.Notify(ctx, shortNotice(noticeCompleted))
			}
			return out, nil
		}
		slog.Error("translation failed", "locator", req.Locator, "attempt", attempt, "error", err)

		switch backend.Classify(err) {
		case backend.KindConnection:
			rc.notify.Notify(ctx, errorNotice(noticeConnection))
			return out, err

		case backend.KindResourceExhausted:
			before, next, ok := rc.reduce(attempt)
			if !ok {
				rc.notify.Notify(ctx, errorNotice(noticeGPUFull))
				return out, err
			}
			if rc.cache != nil {
				rc.cache.Invalidate(ctx, cache.GenerateKey(req.Locator, before))
			}
			rc.notify.Notify(ctx, persistentNotice(fmt.Sprintf("Out of Memory! Reduced to %dpx. Retrying...", next)))
			if err := rc.sleep(ctx, rc.delay); err != nil {
				return out, err
			}

		default:
			rc.notify.Notify(ctx, errorNotice("Error: "+truncate(err.Error(), 100)))
			return out, err
		}
	}
}

// TranslateBatch runs a batch, resubmitting only the items that ran out of
// memory. A concurrent second batch is rejected.
func (rc *RetryController) TranslateBatch(ctx context.Context, locators []string) (BatchReport, error) {
	state := rc.orch.state
	if !state.beginBatch() {
		rc.notify.Notify(ctx, shortNotice(noticeBatchBusy))
		return BatchReport{}, ErrBatchInProgress
	}
	defer state.endBatch()

	rc.notify.Notify(ctx, persistentNotice(fmt.Sprintf("Translating %d images...", len(locators))))

	var report BatchReport
	pending := locators
	for attempt := 0; ; attempt++ {
		settings, err := rc.settings.Load()
		if err != nil {
			err = fmt.Errorf("load settings: %w", err)
			rc.notify.Notify(ctx, errorNotice("Batch error: "+truncate(err.Error(), 80)))
			return report, err
		}

		part, err := rc.orch.translateBatch(ctx, pending, settings)
		report.merge(part)
		if err != nil {
			slog.Error("batch translation failed", "attempt", attempt, "error", err)
			if backend.Classify(err) == backend.KindConnection {
				rc.notify.Notify(ctx, errorNotice(noticeConnection))
			} else {
				rc.notify.Notify(ctx, errorNotice("Batch error: "+truncate(err.Error(), 80)))
			}
			return report, err
		}

		retry := part.exhausted()
		if len(retry) == 0 {
			rc.notify.Notify(ctx, Notice{
				Text:     fmt.Sprintf("Batch completed! Processed %d images.", len(locators)),
				AutoHide: true,
				Duration: 3 * time.Second,
			})
			return report, nil
		}

		before, next, ok := rc.reduce(attempt)
		if !ok {
			rc.notify.Notify(ctx, errorNotice(noticeGPUFull))
			return report, nil
		}
		if rc.cache != nil {
			for _, locator := range retry {
				rc.cache.Invalidate(ctx, cache.GenerateKey(locator, before))
			}
		}
		rc.notify.Notify(ctx, persistentNotice(fmt.Sprintf("Out of Memory! Reduced to %dpx. Retrying batch...", next)))
		if err := rc.sleep(ctx, rc.delay); err != nil {
			return report, err
		}
		pending = retry
	}
}

// reduce persists the next smaller inpainting size. It returns the settings
// before the change and the new size, or ok false when no reduction applies.
func (rc *RetryController) reduce(attempt int) (before types.Settings, next int, ok bool) {
	if attempt >= MaxRetries {
		slog.Info("max retries reached", "attempt", attempt)
		return types.Settings{}, 0, false
	}

	_, err := rc.settings.Update(func(s *types.Settings) error {
		if !s.AutoReduceInpainting {
			return errNoReduction
		}
		n, ok := config.NextInpaintingSize(s.InpaintingSize)
		if !ok {
			return errNoReduction
		}
		before = *s
		next = n
		s.InpaintingSize = n
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNoReduction) {
			slog.Error("persist inpainting size", "error", err)
		}
		return types.Settings{}, 0, false
	}

	slog.Info("reduced inpainting size", "from", before.InpaintingSize, "to", next)
	return before, next, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
