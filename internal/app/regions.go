package app

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"go.aimuz.me/comictl/internal/types"
)

var (
	defaultFg = []int{0, 0, 0}
	defaultBg = []int{255, 255, 255}
)

const (
	minFontSize = 12
	maxFontSize = 24
)

// BuildTextRegions converts backend detections into overlay regions.
// The translated string is the targetLang entry, else the first language
// the backend listed, else empty.
func BuildTextRegions(records []types.TranslationRecord, targetLang string) []types.TextRegion {
	regions := make([]types.TextRegion, 0, len(records))
	for _, rec := range records {
		width := rec.MaxX - rec.MinX
		height := rec.MaxY - rec.MinY

		original := rec.Text.First()
		translated, _ := rec.Text.Get(targetLang)
		if translated == "" {
			translated = original
		}

		fg, bg := defaultFg, defaultBg
		if rec.TextColor != nil {
			if len(rec.TextColor.Fg) > 0 {
				fg = rec.TextColor.Fg
			}
			if len(rec.TextColor.Bg) > 0 {
				bg = rec.TextColor.Bg
			}
		}

		fontSize := min(maxFontSize, max(minFontSize, height/2))
		if rec.FontSize != nil && *rec.FontSize != 0 {
			fontSize = *rec.FontSize
		}

		regions = append(regions, types.TextRegion{
			X:              rec.MinX,
			Y:              rec.MinY,
			Width:          width,
			Height:         height,
			ImgWidth:       rec.MaxX,
			ImgHeight:      rec.MaxY,
			TranslatedText: norm.NFC.String(translated),
			Text:           norm.NFC.String(original),
			FgColor:        rgb(fg),
			BgColor:        rgb(bg),
			FontSize:       fontSize,
			Bold:           rec.Bold != nil && *rec.Bold,
			Prob:           rec.Prob,
			Angle:          rec.Angle,
		})
	}
	return regions
}

func rgb(c []int) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = fmt.Sprint(v)
	}
	return "rgb(" + strings.Join(parts, ",") + ")"
}
