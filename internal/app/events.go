package app

import (
	"context"

	"go.aimuz.me/comictl/internal/types"
)

// Message actions.
const (
	// Inbound from the page or popup.
	ActionTranslateImage = "translateImage"
	ActionTranslateBatch = "translateBatch"
	ActionGetSettings    = "getSettings"
	ActionSaveSettings   = "saveSettings"
	ActionApplyCacheOnly = "applyCacheOnly"
	ActionClearCache     = "clearCache"
	ActionCacheStats     = "cacheStats"

	// Outbound to the page.
	ActionReloadSettings     = "reloadSettings"
	ActionReplaceImage       = "replaceImage"
	ActionOverlayText        = "overlayText"
	ActionMarkImageProcessed = "markImageProcessed"
	ActionOpenResult         = "openResult"

	// Both directions; inbound ones are relayed.
	ActionUpdateProcessIndicator = "updateProcessIndicator"
	ActionHideProcessIndicator   = "hideProcessIndicator"
)

// Message is the envelope exchanged with the page. Only the fields the
// action needs are set.
type Message struct {
	Action string `json:"action"`

	ImageURL         string   `json:"imageUrl,omitempty"`
	ImageURLs        []string `json:"imageUrls,omitempty"`
	ImageElement     string   `json:"imageElement,omitempty"`
	OriginalImageURL string   `json:"originalImageUrl,omitempty"`
	Manual           bool     `json:"manual,omitempty"`

	Settings *types.Settings `json:"settings,omitempty"`

	TextRegions     []types.TextRegion `json:"textRegions,omitempty"`
	CleanedImageURL string             `json:"cleanedImageUrl,omitempty"`

	Status types.ProcessStatus `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`

	// Process indicator. Duration is in milliseconds.
	Text     string `json:"text,omitempty"`
	AutoHide bool   `json:"autoHide,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// Reply answers an inbound message.
type Reply struct {
	Success   bool            `json:"success"`
	Settings  *types.Settings `json:"settings,omitempty"`
	Applied   *bool           `json:"applied,omitempty"`
	CacheSize *int            `json:"cacheSize,omitempty"`
	InFlight  []InFlight      `json:"inFlight,omitempty"`
	Batching  bool            `json:"batching,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Sender delivers outbound messages to the page.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
