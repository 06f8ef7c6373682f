package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"go.aimuz.me/comictl/backend"
	"go.aimuz.me/comictl/cache"
	"go.aimuz.me/comictl/internal/types"
)

// BatchItem is the outcome for one locator of a batch.
type BatchItem struct {
	Locator  string       `json:"locator"`
	Result   types.Result `json:"result"`
	CacheHit bool         `json:"cacheHit,omitempty"`
	Skipped  bool         `json:"skipped,omitempty"` // already in flight elsewhere
	Err      error        `json:"-"`
}

// BatchReport lists batch items in request order.
type BatchReport struct {
	Items []BatchItem `json:"items"`
}

// Count returns how many items ended with mode.
func (r BatchReport) Count(mode types.ResultMode) int {
	n := 0
	for _, it := range r.Items {
		if !it.Skipped && it.Result.Mode == mode {
			n++
		}
	}
	return n
}

// exhausted returns the locators that failed for lack of backend memory.
func (r BatchReport) exhausted() []string {
	var out []string
	for _, it := range r.Items {
		if it.Err != nil && backend.Classify(it.Err) == backend.KindResourceExhausted {
			out = append(out, it.Locator)
		}
	}
	return out
}

// merge replaces items of r with the same locator in other.
func (r *BatchReport) merge(other BatchReport) {
	index := make(map[string]int, len(r.Items))
	for i, it := range r.Items {
		index[it.Locator] = i
	}
	for _, it := range other.Items {
		if i, ok := index[it.Locator]; ok {
			r.Items[i] = it
			continue
		}
		index[it.Locator] = len(r.Items)
		r.Items = append(r.Items, it)
	}
}

// TranslateBatch translates locators in chunks. Only a connection failure
// aborts the batch; other failures are reported per item.
func (o *Orchestrator) TranslateBatch(ctx context.Context, locators []string) (BatchReport, error) {
	if !o.state.beginBatch() {
		return BatchReport{}, ErrBatchInProgress
	}
	defer o.state.endBatch()

	settings, err := o.settings.Load()
	if err != nil {
		return BatchReport{}, fmt.Errorf("load settings: %w", err)
	}
	return o.translateBatch(ctx, locators, settings)
}

func (o *Orchestrator) translateBatch(ctx context.Context, locators []string, settings types.Settings) (BatchReport, error) {
	total := len(locators)
	report := BatchReport{Items: make([]BatchItem, 0, total)}

	for start := 0; start < total; start += o.chunkSize {
		end := min(start+o.chunkSize, total)
		chunk := locators[start:end]

		o.notify.Notify(ctx, persistentNotice(fmt.Sprintf("Translating %d/%d images...", end, total)))

		items := make([]BatchItem, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		for i, locator := range chunk {
			g.Go(func() error {
				item, err := o.batchItem(gctx, locator, settings)
				items[i] = item
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}

		for _, it := range items {
			o.presentBatch(ctx, it)
		}
		report.Items = append(report.Items, items...)

		if end < total {
			if err := o.sleep(ctx, o.chunkPause); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (o *Orchestrator) batchItem(ctx context.Context, locator string, settings types.Settings) (BatchItem, error) {
	release, ok := o.state.acquire(locator, OriginBatch)
	if !ok {
		return BatchItem{Locator: locator, Skipped: true}, nil
	}
	defer release()

	key := cache.GenerateKey(locator, settings)
	if r, ok := o.cached(ctx, key, settings); ok {
		return BatchItem{Locator: locator, Result: r, CacheHit: true}, nil
	}

	o.state.setStage(locator, StageFetching)
	img, err := o.backend.FetchImage(ctx, locator)
	if err != nil {
		return itemError(locator, err)
	}
	r, err := o.compute(ctx, locator, img, settings)
	if err != nil {
		return itemError(locator, err)
	}

	if settings.EnableCache && o.cache != nil {
		o.cache.Put(ctx, key, r)
	}
	return BatchItem{Locator: locator, Result: r}, nil
}

func itemError(locator string, err error) (BatchItem, error) {
	slog.Error("batch item failed", "locator", locator, "error", err)
	if backend.Classify(err) == backend.KindConnection {
		return BatchItem{Locator: locator, Err: err}, fmt.Errorf("translate %s: %w", locator, err)
	}
	return BatchItem{
		Locator: locator,
		Result:  types.Result{Mode: types.ModeError, Error: err.Error()},
		Err:     err,
	}, nil
}

func (o *Orchestrator) presentBatch(ctx context.Context, it BatchItem) {
	if it.Skipped {
		return
	}
	target := types.Target{Locator: it.Locator}
	r := it.Result

	switch {
	case r.Mode == types.ModeOverlay:
		logDispatch("overlay", o.dispatch.Overlay(ctx, target, r.TextRegions, r.CleanedImageURL))
	case r.ImageURL != "":
		logDispatch("replace", o.dispatch.Replace(ctx, target, r.ImageURL))
	case r.Mode == types.ModeNoText:
		o.markProcessed(ctx, target, types.StatusError, msgNoText)
	case r.Mode == types.ModeError:
		o.markProcessed(ctx, target, types.StatusError, r.Error)
	}
}
