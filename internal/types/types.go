// Package types provides shared type definitions for the application.
package types

// DisplayMode controls how a translated image is presented.
type DisplayMode string

const (
	DisplayOverlay  DisplayMode = "overlay"
	DisplayReplace  DisplayMode = "replace"
	DisplayDownload DisplayMode = "download"
)

// Overlay presentation modes.
const (
	OverlayColored = "colored"
	OverlayCleaned = "cleaned"
)

// Settings is the persisted settings snapshot.
// Only the fields listed in FingerprintFields affect the result cache key.
type Settings struct {
	BackendURL string `json:"backendUrl"`

	// Translation-affecting fields
	Translator       string `json:"translator"`
	TargetLang       string `json:"targetLang"`
	Detector         string `json:"detector"`
	Inpainter        string `json:"inpainter"`
	Renderer         string `json:"renderer"`
	OverlayMode      string `json:"overlayMode"`
	OverlayTextColor string `json:"overlayTextColor"`
	InpaintingSize   int    `json:"inpaintingSize"`

	// Behaviour and presentation
	DisplayMode          DisplayMode `json:"displayMode"`
	EnableCache          bool        `json:"enableCache"`
	AutoReduceInpainting bool        `json:"autoReduceInpainting"`
	ShowProcessIndicator bool        `json:"showProcessIndicator"`
	FontSizeOffset       int         `json:"fontSizeOffset"`
	OverlayOpacity       int         `json:"overlayOpacity"`
	CustomTextColor      string      `json:"customTextColor"`
	DraggableOverlay     bool        `json:"draggableOverlay"`
	AutoTranslate        bool        `json:"autoTranslate"`
	SkipProcessed        bool        `json:"skipProcessed"`
	ObserveDynamicImages bool        `json:"observeDynamicImages"`
}

// FingerprintFields is the translation-affecting subset of Settings
// that participates in the cache key. Field order is part of the key.
type FingerprintFields struct {
	Translator       string `json:"translator"`
	TargetLang       string `json:"targetLang"`
	Detector         string `json:"detector"`
	Inpainter        string `json:"inpainter"`
	Renderer         string `json:"renderer"`
	OverlayMode      string `json:"overlayMode"`
	OverlayTextColor string `json:"overlayTextColor"`
}

// Fingerprint returns the cache-relevant subset of s.
// InpaintingSize is not part of it.
func (s Settings) Fingerprint() FingerprintFields {
	return FingerprintFields{
		Translator:       s.Translator,
		TargetLang:       s.TargetLang,
		Detector:         s.Detector,
		Inpainter:        s.Inpainter,
		Renderer:         s.Renderer,
		OverlayMode:      s.OverlayMode,
		OverlayTextColor: s.OverlayTextColor,
	}
}

// ResultMode tags a Result.
type ResultMode string

const (
	ModeDownload ResultMode = "download"
	ModeReplace  ResultMode = "replace"
	ModeOverlay  ResultMode = "overlay"
	ModeNoText   ResultMode = "no_text"
	ModeError    ResultMode = "error"
)

// Result is the outcome of translating one image.
type Result struct {
	Mode            ResultMode   `json:"mode"`
	ImageURL        string       `json:"imageUrl,omitempty"` // media handle for download/replace
	TextRegions     []TextRegion `json:"textRegions"`
	CleanedImageURL string       `json:"cleanedImageUrl,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// Cacheable reports whether r may be stored in the result cache.
func (r Result) Cacheable() bool {
	switch r.Mode {
	case ModeDownload, ModeReplace, ModeOverlay:
		return true
	default:
		return false
	}
}

// TextRegion is a positioned, translated text box in source-image pixels.
type TextRegion struct {
	X              float64  `json:"x"`
	Y              float64  `json:"y"`
	Width          float64  `json:"width"`
	Height         float64  `json:"height"`
	ImgWidth       float64  `json:"img_width"`
	ImgHeight      float64  `json:"img_height"`
	TranslatedText string   `json:"translated_text"`
	Text           string   `json:"text"`
	FgColor        string   `json:"fg_color"`
	BgColor        string   `json:"bg_color"`
	FontSize       float64  `json:"font_size"`
	Bold           bool     `json:"bold"`
	Prob           float64  `json:"prob"`
	Angle          *float64 `json:"angle,omitempty"`
}

// TranslationRecord is one detection returned by /translate/json.
type TranslationRecord struct {
	MinX      float64    `json:"minX"`
	MinY      float64    `json:"minY"`
	MaxX      float64    `json:"maxX"`
	MaxY      float64    `json:"maxY"`
	Text      LangText   `json:"text"`
	TextColor *TextColor `json:"text_color,omitempty"`
	FontSize  *float64   `json:"font_size,omitempty"`
	Bold      *bool      `json:"bold,omitempty"`
	Prob      float64    `json:"prob"`
	Angle     *float64   `json:"angle,omitempty"`
}

// TextColor is a foreground/background RGB pair.
type TextColor struct {
	Fg []int `json:"fg,omitempty"`
	Bg []int `json:"bg,omitempty"`
}

// ProcessStatus is reported to a render target once an image is done.
type ProcessStatus string

const (
	StatusSuccess ProcessStatus = "success"
	StatusError   ProcessStatus = "error"
)

// Target references the page element an image was found in.
// Element is opaque to the core and only echoed back to the page.
type Target struct {
	Locator string `json:"originalImageUrl"`
	Element string `json:"imageElement,omitempty"`
}
