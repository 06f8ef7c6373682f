package cache

import (
	"regexp"
	"testing"

	"go.aimuz.me/comictl/config"
	"go.aimuz.me/comictl/internal/types"
)

func TestGenerateKey(t *testing.T) {
	const locator = "https://x/a.png"
	base := config.Default()

	t.Run("deterministic", func(t *testing.T) {
		if GenerateKey(locator, base) != GenerateKey(locator, base) {
			t.Fatal("same input produced different keys")
		}
	})

	t.Run("storage safe", func(t *testing.T) {
		key := GenerateKey(locator+"?q=1&x=ü", base)
		if !regexp.MustCompile(`^[a-z0-9_]+$`).MatchString(key) {
			t.Errorf("key %q has unsafe characters", key)
		}
	})

	same := []struct {
		name   string
		modify func(s *types.Settings)
	}{
		{"overlay opacity", func(s *types.Settings) { s.OverlayOpacity = 10 }},
		{"display mode", func(s *types.Settings) { s.DisplayMode = "replace" }},
		{"cache toggle", func(s *types.Settings) { s.EnableCache = false }},
		{"inpainting size", func(s *types.Settings) { s.InpaintingSize = 512 }},
		{"backend url", func(s *types.Settings) { s.BackendURL = "http://other:9000" }},
	}
	for _, tt := range same {
		t.Run("ignores "+tt.name, func(t *testing.T) {
			s := base
			tt.modify(&s)
			if GenerateKey(locator, s) != GenerateKey(locator, base) {
				t.Errorf("changing %s changed the key", tt.name)
			}
		})
	}

	different := []struct {
		name   string
		modify func(s *types.Settings)
	}{
		{"target language", func(s *types.Settings) { s.TargetLang = "CHS" }},
		{"translator", func(s *types.Settings) { s.Translator = "sugoi" }},
		{"detector", func(s *types.Settings) { s.Detector = "ctd" }},
		{"inpainter", func(s *types.Settings) { s.Inpainter = "none" }},
		{"renderer", func(s *types.Settings) { s.Renderer = "default" }},
		{"overlay mode", func(s *types.Settings) { s.OverlayMode = "cleaned" }},
		{"overlay text color", func(s *types.Settings) { s.OverlayTextColor = "custom" }},
	}
	for _, tt := range different {
		t.Run("depends on "+tt.name, func(t *testing.T) {
			s := base
			tt.modify(&s)
			if GenerateKey(locator, s) == GenerateKey(locator, base) {
				t.Errorf("changing %s kept the key", tt.name)
			}
		})
	}

	t.Run("depends on locator", func(t *testing.T) {
		if GenerateKey("https://x/a.png", base) == GenerateKey("https://x/b.png", base) {
			t.Error("different locators share a key")
		}
	})
}
