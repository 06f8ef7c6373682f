package app

import (
	"context"
	"time"

	"go.aimuz.me/comictl/backend"
	"go.aimuz.me/comictl/internal/types"
)

// Dispatcher presents results on the page. Implementations may fail;
// callers log and ignore the error.
type Dispatcher interface {
	// Replace swaps the image at target for the image behind handle.
	Replace(ctx context.Context, target types.Target, handle string) error
	// Overlay draws regions over target. cleaned is the optional text-free image.
	Overlay(ctx context.Context, target types.Target, regions []types.TextRegion, cleaned string) error
	// OpenResult shows handle in a separate results view.
	OpenResult(ctx context.Context, handle string) error
	// MarkProcessed tags target as done so scanners skip it.
	MarkProcessed(ctx context.Context, target types.Target, status types.ProcessStatus, errMsg string) error
}

// Notice is a progress indicator update.
// A zero Duration with AutoHide false keeps the notice until replaced.
type Notice struct {
	Text     string        `json:"text"`
	AutoHide bool          `json:"autoHide,omitempty"`
	Duration time.Duration `json:"-"`
}

// Notifier shows progress notices. It never fails from the caller's view.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
	Hide(ctx context.Context)
}

// SettingsStore is the persisted settings snapshot.
type SettingsStore interface {
	Load() (types.Settings, error)
	Update(fn func(*types.Settings) error) (types.Settings, error)
}

// ResultCache memoizes results by fingerprint. It fails open.
type ResultCache interface {
	Get(ctx context.Context, key string) (types.Result, bool)
	Put(ctx context.Context, key string, r types.Result)
	Invalidate(ctx context.Context, key string)
}

// Backend is the image-translation service.
type Backend interface {
	FetchImage(ctx context.Context, url string) (backend.Image, error)
	RequestImage(ctx context.Context, req backend.Request) (backend.Image, error)
	RequestJSON(ctx context.Context, req backend.Request) (backend.JSONResult, error)
}

// MediaStore turns binary bodies into handles the page can load.
type MediaStore interface {
	Register(data []byte, contentType string) string
}

// Notices shown by the orchestrator and the retry controller.
const (
	noticeTranslating     = "Translating..."
	noticeCompleted       = "Translation completed"
	noticeManualCompleted = "Translation completed!"
	noticeInProgress      = "Translation in progress, please wait..."
	noticeProcessing      = "Processing image..."
	noticeConnection      = "Backend connection failed. Check Backend URL or console for details."
	noticeGPUFull         = "GPU memory full! Reduce inpainting size in settings. Try: 1536px, 1024px, or 768px"
	noticeBatchBusy       = "Batch translation already in progress"

	msgNoText  = "No text regions found"
	msgTimeout = "Translation timeout"
)

func shortNotice(text string) Notice {
	return Notice{Text: text, AutoHide: true, Duration: 2 * time.Second}
}

func errorNotice(text string) Notice {
	return Notice{Text: text, AutoHide: true, Duration: 5 * time.Second}
}

func persistentNotice(text string) Notice {
	return Notice{Text: text}
}
