package backend

import (
	"encoding/json"

	"go.aimuz.me/comictl/internal/types"
)

// Config is the translation config sent with every backend request.
// Nullable fields are pointers or raw JSON so they encode as null.
type Config struct {
	Translator         TranslatorConfig `json:"translator"`
	Detector           DetectorConfig   `json:"detector"`
	Inpainter          InpainterConfig  `json:"inpainter"`
	Render             RenderConfig     `json:"render"`
	OCR                OCRConfig        `json:"ocr"`
	Upscale            UpscaleConfig    `json:"upscale"`
	Colorizer          ColorizerConfig  `json:"colorizer"`
	KernelSize         int              `json:"kernel_size"`
	MaskDilationOffset int              `json:"mask_dilation_offset"`
	Device             string           `json:"device"`
}

type TranslatorConfig struct {
	Translator           string          `json:"translator"`
	TargetLang           string          `json:"target_lang"`
	NoTextLangSkip       bool            `json:"no_text_lang_skip"`
	SkipLang             *string         `json:"skip_lang"`
	GPTConfig            json.RawMessage `json:"gpt_config"`
	TranslatorChain      *string         `json:"translator_chain"`
	SelectiveTranslation *string         `json:"selective_translation"`
}

type DetectorConfig struct {
	Detector        string  `json:"detector"`
	DetectionSize   int     `json:"detection_size"`
	TextThreshold   float64 `json:"text_threshold"`
	DetRotate       bool    `json:"det_rotate"`
	DetAutoRotate   bool    `json:"det_auto_rotate"`
	DetInvert       bool    `json:"det_invert"`
	DetGammaCorrect bool    `json:"det_gamma_correct"`
	BoxThreshold    float64 `json:"box_threshold"`
	UnclipRatio     float64 `json:"unclip_ratio"`
}

type InpainterConfig struct {
	Inpainter           string `json:"inpainter"`
	InpaintingSize      int    `json:"inpainting_size"`
	InpaintingPrecision string `json:"inpainting_precision"`
}

type RenderConfig struct {
	Renderer          string   `json:"renderer"`
	Alignment         string   `json:"alignment"`
	DisableFontBorder bool     `json:"disable_font_border"`
	FontSizeOffset    int      `json:"font_size_offset"`
	FontSizeMinimum   int      `json:"font_size_minimum"`
	Direction         string   `json:"direction"`
	Uppercase         bool     `json:"uppercase"`
	Lowercase         bool     `json:"lowercase"`
	GimpFont          string   `json:"gimp_font"`
	NoHyphenation     bool     `json:"no_hyphenation"`
	FontColor         *string  `json:"font_color"`
	LineSpacing       *float64 `json:"line_spacing"`
	FontSize          *int     `json:"font_size"`
	RTL               bool     `json:"rtl"`
}

type OCRConfig struct {
	UseMOCRMerge  bool   `json:"use_mocr_merge"`
	OCR           string `json:"ocr"`
	MinTextLength int    `json:"min_text_length"`
	IgnoreBubble  int    `json:"ignore_bubble"`
}

type UpscaleConfig struct {
	Upscaler        string   `json:"upscaler"`
	RevertUpscaling bool     `json:"revert_upscaling"`
	UpscaleRatio    *float64 `json:"upscale_ratio"`
}

type ColorizerConfig struct {
	ColorizationSize int    `json:"colorization_size"`
	DenoiseSigma     int    `json:"denoise_sigma"`
	Colorizer        string `json:"colorizer"`
}

// NoRenderer disables text rendering on the backend.
const NoRenderer = "none"

const defaultInpaintingSize = 2048

// BuildConfig maps settings to the backend config. It is pure.
func BuildConfig(s types.Settings) Config {
	size := s.InpaintingSize
	if size == 0 {
		size = defaultInpaintingSize
	}

	cfg := Config{
		Translator: TranslatorConfig{
			Translator: s.Translator,
			TargetLang: s.TargetLang,
		},
		Detector: DetectorConfig{
			Detector:      s.Detector,
			DetectionSize: 2048,
			TextThreshold: 0.5,
			BoxThreshold:  0.7,
			UnclipRatio:   2.3,
		},
		Inpainter: InpainterConfig{
			Inpainter:           s.Inpainter,
			InpaintingSize:      size,
			InpaintingPrecision: "bf16",
		},
		Render: RenderConfig{
			Renderer:        s.Renderer,
			Alignment:       "auto",
			FontSizeOffset:  s.FontSizeOffset,
			FontSizeMinimum: -1,
			Direction:       "auto",
			GimpFont:        "Sans-serif",
			RTL:             true,
		},
		OCR: OCRConfig{
			OCR: "48px",
		},
		Upscale: UpscaleConfig{
			Upscaler: "esrgan",
		},
		Colorizer: ColorizerConfig{
			ColorizationSize: 576,
			DenoiseSigma:     30,
			Colorizer:        "none",
		},
		KernelSize:         3,
		MaskDilationOffset: 20,
		Device:             "cuda",
	}

	// The extension draws its own text over a cleaned image.
	if s.DisplayMode == types.DisplayOverlay && s.OverlayMode == types.OverlayCleaned {
		cfg.Render.Renderer = NoRenderer
	}

	return cfg
}
