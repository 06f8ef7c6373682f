// Package config handles persisted translation settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.aimuz.me/comictl/internal/types"
)

const (
	appName          = "comictl"
	settingsFileName = "settings.json"
)

// InpaintingSizes is the quality scale, largest to smallest.
var InpaintingSizes = []int{2048, 1536, 1024, 768, 512}

// Default returns the settings used when nothing has been saved yet.
func Default() types.Settings {
	return types.Settings{
		BackendURL:           "http://127.0.0.1:8000",
		Translator:           "offline",
		TargetLang:           "ENG",
		Detector:             "default",
		Inpainter:            "lama_large",
		Renderer:             "manga2eng",
		DisplayMode:          types.DisplayOverlay,
		InpaintingSize:       InpaintingSizes[0],
		AutoReduceInpainting: true,
		ShowProcessIndicator: true,
		OverlayMode:          types.OverlayColored,
		OverlayOpacity:       90,
		OverlayTextColor:     "auto",
		CustomTextColor:      "#ffffff",
		DraggableOverlay:     true,
		EnableCache:          true,
		SkipProcessed:        true,
		ObserveDynamicImages: true,
	}
}

// NextInpaintingSize returns the next smaller step below size.
// Sizes off the scale step down to the largest step smaller than them.
func NextInpaintingSize(size int) (int, bool) {
	idx := slices.Index(InpaintingSizes, size)
	if idx >= 0 {
		if idx == len(InpaintingSizes)-1 {
			return 0, false
		}
		return InpaintingSizes[idx+1], true
	}
	for _, s := range InpaintingSizes {
		if s < size {
			return s, true
		}
	}
	return 0, false
}

// normalizeInpaintingSize snaps size onto the scale.
func normalizeInpaintingSize(size int) int {
	switch {
	case size <= 0:
		return InpaintingSizes[0]
	case slices.Contains(InpaintingSizes, size):
		return size
	}
	if next, ok := NextInpaintingSize(size); ok {
		return next
	}
	return InpaintingSizes[len(InpaintingSizes)-1]
}

// Store persists settings as a JSON file.
// Writers are serialized in-process; Update is the only safe read-modify-write.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the settings file under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, settingsFileName), nil
}

// DefaultCacheDir returns the badger directory under the user config dir.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, "cache"), nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads settings from disk.
// Returns defaults if the file doesn't exist.
func (s *Store) Load() (types.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save persists settings to disk.
func (s *Store) Save(settings types.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

// Update applies fn to the stored settings and saves the result.
// If fn returns an error nothing is written.
func (s *Store) Update(fn func(*types.Settings) error) (types.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return types.Settings{}, err
	}
	if err := fn(&settings); err != nil {
		return types.Settings{}, err
	}
	if err := s.save(settings); err != nil {
		return types.Settings{}, err
	}
	return settings, nil
}

// Reset restores defaults.
func (s *Store) Reset() (types.Settings, error) {
	settings := Default()
	if err := s.Save(settings); err != nil {
		return types.Settings{}, err
	}
	return settings, nil
}

func (s *Store) load() (types.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return types.Settings{}, fmt.Errorf("read settings: %w", err)
	}

	// Unmarshal onto defaults so missing fields keep their default value.
	settings := Default()
	if err := json.Unmarshal(data, &settings); err != nil {
		return types.Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	applyDefaults(&settings)
	return settings, nil
}

func (s *Store) save(settings types.Settings) error {
	if err := Validate(settings); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Write then rename so a crash never leaves a half-written file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Validate checks fields the core depends on.
func Validate(s types.Settings) error {
	if s.BackendURL == "" {
		return fmt.Errorf("backend url required")
	}
	switch s.DisplayMode {
	case types.DisplayOverlay, types.DisplayReplace, types.DisplayDownload:
	default:
		return fmt.Errorf("unknown display mode: %s", s.DisplayMode)
	}
	if s.TargetLang == "" {
		return fmt.Errorf("target language required")
	}
	return nil
}

func applyDefaults(s *types.Settings) {
	def := Default()
	if s.BackendURL == "" {
		s.BackendURL = def.BackendURL
	}
	if s.DisplayMode == "" {
		s.DisplayMode = def.DisplayMode
	}
	if s.TargetLang == "" {
		s.TargetLang = def.TargetLang
	}
	if s.OverlayMode == "" {
		s.OverlayMode = def.OverlayMode
	}
	s.InpaintingSize = normalizeInpaintingSize(s.InpaintingSize)
}
