package app

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/comictl/backend"
	"go.aimuz.me/comictl/cache"
	"go.aimuz.me/comictl/config"
	"go.aimuz.me/comictl/internal/types"
)

func TestRetry_DegradesInpaintingSize(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.jsonFn = func(context.Context, backend.Request) (backend.JSONResult, error) {
		return backend.JSONResult{}, oomError()
	}
	const locator = "https://x/big.png"
	before, _ := h.settings.Load()

	_, err := h.retry().Translate(context.Background(), Request{Locator: locator})
	require.Error(t, err)
	assert.Equal(t, backend.KindResourceExhausted, backend.Classify(err))

	assert.Equal(t, []int{2048, 1536, 1024, 768}, h.backend.seenSizes())
	after, _ := h.settings.Load()
	assert.Equal(t, 768, after.InpaintingSize)
	assert.Equal(t, 3, h.settings.updates)

	key := cache.GenerateKey(locator, before)
	assert.Equal(t, []string{key, key, key}, h.cache.invalidated)

	assert.Equal(t, []string{
		"Translating...",
		"Out of Memory! Reduced to 1536px. Retrying...",
		"Translating...",
		"Out of Memory! Reduced to 1024px. Retrying...",
		"Translating...",
		"Out of Memory! Reduced to 768px. Retrying...",
		"Translating...",
		"GPU memory full! Reduce inpainting size in settings. Try: 1536px, 1024px, or 768px",
	}, h.rec.texts())

	last := h.rec.lastNotice()
	assert.True(t, last.AutoHide)
	assert.Equal(t, 5*time.Second, last.Duration)
}

func TestRetry_RecoversAfterReduction(t *testing.T) {
	h := newHarness(t, nil)
	var mu sync.Mutex
	calls := 0
	h.backend.jsonFn = func(context.Context, backend.Request) (backend.JSONResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return backend.JSONResult{}, oomError()
		}
		return backend.JSONResult{Translations: []types.TranslationRecord{helloRecord()}}, nil
	}

	out, err := h.retry().Translate(context.Background(), Request{Locator: "https://x/a.png"})
	require.NoError(t, err)
	assert.Equal(t, types.ModeOverlay, out.Result.Mode)

	s, _ := h.settings.Load()
	assert.Equal(t, 1536, s.InpaintingSize)
	assert.Len(t, h.cache.invalidated, 1)
	assert.Equal(t, Notice{Text: "Translation completed", AutoHide: true, Duration: 2 * time.Second}, h.rec.lastNotice())
}

func TestRetry_NoReduction(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Settings)
	}{
		{"auto reduce disabled", func(s *types.Settings) { s.AutoReduceInpainting = false }},
		{"already at smallest size", func(s *types.Settings) { s.InpaintingSize = config.InpaintingSizes[len(config.InpaintingSizes)-1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.mutate)
			h.backend.jsonFn = func(context.Context, backend.Request) (backend.JSONResult, error) {
				return backend.JSONResult{}, oomError()
			}
			before, _ := h.settings.Load()

			_, err := h.retry().Translate(context.Background(), Request{Locator: "https://x/a.png"})
			require.Error(t, err)

			assert.Equal(t, 1, h.backend.callCount("json "))
			assert.Zero(t, h.settings.updates)
			after, _ := h.settings.Load()
			assert.Equal(t, before, after)
			assert.Empty(t, h.cache.invalidated)
			assert.Equal(t, noticeGPUFull, h.rec.lastNotice().Text)
		})
	}
}

func TestRetry_ConnectionErrorNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.fetchFn = func(context.Context, string) (backend.Image, error) {
		return backend.Image{}, &net.DNSError{Err: "no such host", Name: "x"}
	}

	_, err := h.retry().Translate(context.Background(), Request{Locator: "https://x/a.png"})
	require.Error(t, err)
	assert.Equal(t, 1, h.backend.callCount("fetch "))
	assert.Zero(t, h.settings.updates)
	assert.Equal(t, Notice{Text: noticeConnection, AutoHide: true, Duration: 5 * time.Second}, h.rec.lastNotice())
}

func TestRetry_ImageHostFailureKeepsSettings(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.fetchFn = func(context.Context, string) (backend.Image, error) {
		return backend.Image{}, &backend.StatusError{Op: backend.OpFetchImage, StatusCode: 500}
	}

	_, err := h.retry().Translate(context.Background(), Request{Locator: "https://cdn/a.png"})
	require.Error(t, err)
	assert.Equal(t, backend.KindConnection, backend.Classify(err))

	assert.Equal(t, 1, h.backend.callCount("fetch "))
	assert.Zero(t, h.backend.callCount("json "))
	assert.Zero(t, h.settings.updates)
	assert.Empty(t, h.cache.invalidated)
	after, _ := h.settings.Load()
	assert.Equal(t, 2048, after.InpaintingSize)
	assert.Equal(t, noticeConnection, h.rec.lastNotice().Text)
}

func TestRetry_GenericErrorTruncated(t *testing.T) {
	h := newHarness(t, nil)
	long := strings.Repeat("x", 150)
	h.backend.fetchFn = func(context.Context, string) (backend.Image, error) {
		return backend.Image{}, errors.New(long)
	}

	_, err := h.retry().Translate(context.Background(), Request{Locator: "https://x/a.png"})
	require.Error(t, err)
	assert.Equal(t, 1, h.backend.callCount("fetch "))
	assert.Equal(t, "Error: "+long[:100], h.rec.lastNotice().Text)
}

func TestRetry_RejectedDuplicateHasNoCompletion(t *testing.T) {
	h := newHarness(t, nil)
	release, ok := h.orch.State().acquire("https://x/a.png", OriginAuto)
	require.True(t, ok)
	defer release()

	out, err := h.retry().Translate(context.Background(), Request{Locator: "https://x/a.png", Manual: true})
	require.NoError(t, err)
	assert.True(t, out.Rejected)
	assert.NotContains(t, h.rec.texts(), noticeCompleted)
}

func TestRetryBatch_RetriesExhaustedItems(t *testing.T) {
	h := newHarness(t, nil)
	var mu sync.Mutex
	failed := false
	h.backend.jsonFn = func(_ context.Context, req backend.Request) (backend.JSONResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if string(req.Image) == "https://x/2.png" && !failed {
			failed = true
			return backend.JSONResult{}, oomError()
		}
		return backend.JSONResult{Translations: []types.TranslationRecord{helloRecord()}}, nil
	}
	before, _ := h.settings.Load()

	report, err := h.retry().TranslateBatch(context.Background(), pages(3))
	require.NoError(t, err)

	require.Len(t, report.Items, 3)
	assert.Equal(t, 3, report.Count(types.ModeOverlay))
	assert.Equal(t, 2, h.backend.callCount("json https://x/2.png"))
	assert.Equal(t, 1, h.backend.callCount("json https://x/1.png"))
	assert.Equal(t, []string{cache.GenerateKey("https://x/2.png", before)}, h.cache.invalidated)

	s, _ := h.settings.Load()
	assert.Equal(t, 1536, s.InpaintingSize)
	assert.Contains(t, h.rec.texts(), "Out of Memory! Reduced to 1536px. Retrying batch...")
	assert.Equal(t, Notice{Text: "Batch completed! Processed 3 images.", AutoHide: true, Duration: 3 * time.Second}, h.rec.lastNotice())
	assert.Equal(t, "Translating 3 images...", h.rec.texts()[0])
	assert.False(t, h.orch.State().Batching())
}

func TestRetryBatch_GivesUp(t *testing.T) {
	h := newHarness(t, func(s *types.Settings) { s.AutoReduceInpainting = false })
	h.backend.jsonFn = func(context.Context, backend.Request) (backend.JSONResult, error) {
		return backend.JSONResult{}, oomError()
	}

	report, err := h.retry().TranslateBatch(context.Background(), pages(2))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(types.ModeError))
	assert.Equal(t, noticeGPUFull, h.rec.lastNotice().Text)
}

func TestRetryBatch_ConnectionError(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.fetchFn = func(context.Context, string) (backend.Image, error) {
		return backend.Image{}, &backend.StatusError{Op: backend.OpFetchImage, StatusCode: 404}
	}

	_, err := h.retry().TranslateBatch(context.Background(), pages(2))
	require.Error(t, err)
	assert.Equal(t, noticeConnection, h.rec.lastNotice().Text)
	assert.False(t, h.orch.State().Batching())
}

func TestRetryBatch_ImageHostFailureKeepsSettings(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.fetchFn = func(context.Context, string) (backend.Image, error) {
		return backend.Image{}, &backend.StatusError{Op: backend.OpFetchImage, StatusCode: 500}
	}

	_, err := h.retry().TranslateBatch(context.Background(), pages(2))
	require.Error(t, err)
	assert.Zero(t, h.settings.updates)
	assert.Empty(t, h.cache.invalidated)
	assert.Zero(t, h.backend.callCount("json "))
	assert.Equal(t, noticeConnection, h.rec.lastNotice().Text)
}

func TestRetryBatch_Busy(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.orch.State().beginBatch())

	_, err := h.retry().TranslateBatch(context.Background(), pages(2))
	require.ErrorIs(t, err, ErrBatchInProgress)
	assert.Equal(t, "Batch translation already in progress", h.rec.lastNotice().Text)
	assert.Empty(t, h.backend.calls)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "日本", truncate("日本語", 2))
}
