package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.aimuz.me/comictl/backend"
	"go.aimuz.me/comictl/cache"
	"go.aimuz.me/comictl/internal/types"
)

var (
	// ErrTimeout is returned when the caller stopped waiting for a translation.
	// The workflow itself keeps running and may still write the cache.
	ErrTimeout = errors.New("translation timeout")
	// ErrBatchInProgress rejects a second concurrent batch.
	ErrBatchInProgress = errors.New("batch translation already in progress")
)

// Defaults for the orchestrator.
const (
	DefaultTimeout    = 60 * time.Second
	DefaultChunkSize  = 4
	DefaultChunkPause = 500 * time.Millisecond
)

// Request asks for one image to be translated.
type Request struct {
	Locator string
	Target  types.Target
	Manual  bool
}

// Outcome is what a Translate call produced.
// Rejected is set when the locator was already in flight.
type Outcome struct {
	Result   types.Result
	Rejected bool
	CacheHit bool
}

// Deps are the collaborators of an Orchestrator. Cache may be nil.
type Deps struct {
	State      *OrchestratorState
	Settings   SettingsStore
	Cache      ResultCache
	Backend    Backend
	Media      MediaStore
	Dispatcher Dispatcher
	Notifier   Notifier
}

// Orchestrator runs the cache-first translation workflow for single
// images and batches.
type Orchestrator struct {
	state    *OrchestratorState
	settings SettingsStore
	cache    ResultCache
	backend  Backend
	media    MediaStore
	dispatch Dispatcher
	notify   Notifier

	timeout    time.Duration
	chunkSize  int
	chunkPause time.Duration
	sleep      func(context.Context, time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout sets the soft per-image timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithChunkPause sets the pause between batch chunks.
func WithChunkPause(d time.Duration) Option {
	return func(o *Orchestrator) { o.chunkPause = d }
}

// WithSleep replaces the sleep used between batch chunks.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(d Deps, opts ...Option) *Orchestrator {
	if d.State == nil {
		d.State = NewOrchestratorState()
	}
	o := &Orchestrator{
		state:      d.State,
		settings:   d.Settings,
		cache:      d.Cache,
		backend:    d.Backend,
		media:      d.Media,
		dispatch:   d.Dispatcher,
		notify:     d.Notifier,
		timeout:    DefaultTimeout,
		chunkSize:  DefaultChunkSize,
		chunkPause: DefaultChunkPause,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the in-flight registry.
func (o *Orchestrator) State() *OrchestratorState {
	return o.state
}

// Translate runs the workflow for one image. A duplicate of an in-flight
// locator is a no-op with Outcome.Rejected set.
//
// When the soft timeout fires the target is marked failed and ErrTimeout is
// returned, but the backend call is not aborted: its late result may still
// be cached and dispatched. The locator stays registered until then.
func (o *Orchestrator) Translate(ctx context.Context, req Request) (Outcome, error) {
	origin := OriginAuto
	if req.Manual {
		origin = OriginManual
	}
	if req.Target.Locator == "" {
		req.Target.Locator = req.Locator
	}

	release, ok := o.state.acquire(req.Locator, origin)
	if !ok {
		slog.Debug("image already being processed", "locator", req.Locator)
		if req.Manual {
			o.notify.Notify(ctx, shortNotice(noticeInProgress))
		}
		return Outcome{Rejected: true}, nil
	}

	settings, err := o.settings.Load()
	if err != nil {
		release()
		return Outcome{}, fmt.Errorf("load settings: %w", err)
	}

	if o.timeout <= 0 {
		defer release()
		return o.run(ctx, req, settings)
	}

	type done struct {
		out Outcome
		err error
	}
	ch := make(chan done, 1)
	wctx := context.WithoutCancel(ctx)
	go func() {
		out, err := o.run(wctx, req, settings)
		release()
		ch <- done{out: out, err: err}
	}()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case d := <-ch:
		return d.out, d.err
	case <-timer.C:
		slog.Warn("translation timed out", "locator", req.Locator, "after", o.timeout)
		o.markProcessed(ctx, req.Target, types.StatusError, msgTimeout)
		return Outcome{}, fmt.Errorf("translate %s: %w", req.Locator, ErrTimeout)
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, req Request, settings types.Settings) (Outcome, error) {
	key := cache.GenerateKey(req.Locator, settings)
	if r, ok := o.cached(ctx, key, settings); ok {
		slog.Debug("using cached translation", "locator", req.Locator)
		o.presentCached(ctx, req.Target, r)
		return Outcome{Result: r, CacheHit: true}, nil
	}

	if req.Manual {
		o.notify.Notify(ctx, persistentNotice(noticeProcessing))
	}

	o.state.setStage(req.Locator, StageFetching)
	img, err := o.backend.FetchImage(ctx, req.Locator)
	if err != nil {
		return Outcome{}, err
	}

	r, err := o.compute(ctx, req.Locator, img, settings)
	if err != nil {
		return Outcome{}, err
	}
	o.present(ctx, req.Target, r)

	if settings.EnableCache && o.cache != nil {
		o.cache.Put(ctx, key, r)
	}
	if req.Manual && r.Cacheable() {
		o.notify.Notify(ctx, shortNotice(noticeManualCompleted))
	}
	return Outcome{Result: r}, nil
}

// ApplyCache dispatches the cached result for locator if there is one.
// It never contacts the backend.
func (o *Orchestrator) ApplyCache(ctx context.Context, locator string, target types.Target) (bool, error) {
	settings, err := o.settings.Load()
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	if target.Locator == "" {
		target.Locator = locator
	}

	r, ok := o.cached(ctx, cache.GenerateKey(locator, settings), settings)
	if !ok {
		return false, nil
	}
	o.presentCached(ctx, target, r)
	return true, nil
}

func (o *Orchestrator) cached(ctx context.Context, key string, settings types.Settings) (types.Result, bool) {
	if !settings.EnableCache || o.cache == nil {
		return types.Result{}, false
	}
	return o.cache.Get(ctx, key)
}

// compute sends img to the backend according to the display mode.
// It does not dispatch anything.
func (o *Orchestrator) compute(ctx context.Context, locator string, img backend.Image, settings types.Settings) (types.Result, error) {
	req := backend.Request{
		BaseURL:     settings.BackendURL,
		Image:       img.Data,
		ContentType: img.ContentType,
		Config:      backend.BuildConfig(settings),
	}

	o.state.setStage(locator, StageRequesting)

	switch settings.DisplayMode {
	case types.DisplayDownload, types.DisplayReplace:
		out, err := o.backend.RequestImage(ctx, req)
		if err != nil {
			return types.Result{}, err
		}
		mode := types.ModeReplace
		if settings.DisplayMode == types.DisplayDownload {
			mode = types.ModeDownload
		}
		return types.Result{
			Mode:        mode,
			ImageURL:    o.media.Register(out.Data, out.ContentType),
			TextRegions: []types.TextRegion{},
		}, nil

	case types.DisplayOverlay:
		js, err := o.backend.RequestJSON(ctx, req)
		if err != nil {
			return types.Result{}, err
		}
		if len(js.Translations) == 0 {
			slog.Warn("no text regions found", "locator", locator)
			return types.Result{Mode: types.ModeNoText, Error: msgNoText}, nil
		}

		r := types.Result{
			Mode:        types.ModeOverlay,
			TextRegions: BuildTextRegions(js.Translations, settings.TargetLang),
		}
		if settings.OverlayMode == types.OverlayCleaned {
			clean, err := o.backend.RequestImage(ctx, req)
			if err != nil {
				return types.Result{}, err
			}
			r.CleanedImageURL = o.media.Register(clean.Data, clean.ContentType)
		}
		return r, nil

	default:
		return types.Result{}, fmt.Errorf("unknown display mode: %s", settings.DisplayMode)
	}
}

// present dispatches a freshly computed result.
func (o *Orchestrator) present(ctx context.Context, target types.Target, r types.Result) {
	switch r.Mode {
	case types.ModeDownload:
		o.state.setStage(target.Locator, StageDownloading)
		logDispatch("open result", o.dispatch.OpenResult(ctx, r.ImageURL))
	case types.ModeReplace:
		o.state.setStage(target.Locator, StageReplacing)
		logDispatch("replace", o.dispatch.Replace(ctx, target, r.ImageURL))
	case types.ModeOverlay:
		if r.CleanedImageURL != "" {
			o.state.setStage(target.Locator, StageReplacing)
			logDispatch("replace", o.dispatch.Replace(ctx, target, r.CleanedImageURL))
		}
		o.state.setStage(target.Locator, StageOverlaying)
		logDispatch("overlay", o.dispatch.Overlay(ctx, target, r.TextRegions, r.CleanedImageURL))
	case types.ModeNoText:
		o.markProcessed(ctx, target, types.StatusError, msgNoText)
	}
}

// presentCached dispatches a cached result. Image results go to the
// results view or replace the page image, overlays are drawn again.
func (o *Orchestrator) presentCached(ctx context.Context, target types.Target, r types.Result) {
	switch {
	case r.ImageURL != "" && r.Mode == types.ModeDownload:
		logDispatch("open result", o.dispatch.OpenResult(ctx, r.ImageURL))
	case r.ImageURL != "":
		logDispatch("replace", o.dispatch.Replace(ctx, target, r.ImageURL))
	case r.Mode == types.ModeOverlay:
		logDispatch("overlay", o.dispatch.Overlay(ctx, target, r.TextRegions, r.CleanedImageURL))
	}
}

func (o *Orchestrator) markProcessed(ctx context.Context, target types.Target, status types.ProcessStatus, msg string) {
	logDispatch("mark processed", o.dispatch.MarkProcessed(ctx, target, status, msg))
}

func logDispatch(op string, err error) {
	if err != nil {
		slog.Debug("dispatch failed", "op", op, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
