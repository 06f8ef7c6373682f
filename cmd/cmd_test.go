package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/comictl/internal/types"
)

// runCLI executes rootCmd against a throwaway settings file with an
// in-memory result cache.
func runCLI(t *testing.T, settingsPath string, args ...string) (string, error) {
	t.Helper()
	outDir = ""
	jsonOutput = false

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--settings", settingsPath, "--memory-cache"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

// fakeBackend serves /translate/json with one region, /translate/image
// with a fixed body and the page image itself under /page.png.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("page"))
	})
	mux.HandleFunc("/translate/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translations":[{"minX":10,"minY":10,"maxX":110,"maxY":60,"text":{"ENG":"Hello"},"prob":0.9}]}`))
	})
	mux.HandleFunc("/translate/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("rendered"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSettings_ShowDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	out, err := runCLI(t, path, "settings", "show")
	require.NoError(t, err)

	var s types.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "ENG", s.TargetLang)
	assert.Equal(t, types.DisplayOverlay, s.DisplayMode)
	assert.Equal(t, 2048, s.InpaintingSize)
}

func TestSettings_SetAndReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := runCLI(t, path, "settings", "set", "targetLang", "CHS")
	require.NoError(t, err)
	_, err = runCLI(t, path, "settings", "set", "inpaintingSize", "1024")
	require.NoError(t, err)
	_, err = runCLI(t, path, "settings", "set", "enableCache", "false")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s types.Settings
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, "CHS", s.TargetLang)
	assert.Equal(t, 1024, s.InpaintingSize)
	assert.False(t, s.EnableCache)

	out, err := runCLI(t, path, "settings", "reset")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "ENG", s.TargetLang)
	assert.True(t, s.EnableCache)
}

func TestSettings_SetRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := runCLI(t, path, "settings", "set", "nope", "1")
	assert.ErrorContains(t, err, `unknown setting "nope"`)
}

func TestSettings_SetRejectsWrongType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := runCLI(t, path, "settings", "set", "inpaintingSize", "big")
	assert.Error(t, err)
}

func TestSettings_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	out, err := runCLI(t, path, "settings", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestCache_StatsAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	out, err := runCLI(t, path, "cache", "stats")
	require.NoError(t, err)
	assert.Equal(t, "cached results: 0\n", out)

	out, err = runCLI(t, path, "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "cache cleared\n", out)
}

func TestTranslate_Overlay(t *testing.T) {
	srv := fakeBackend(t)
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := runCLI(t, path, "settings", "set", "backendUrl", srv.URL)
	require.NoError(t, err)

	out, err := runCLI(t, path, "translate", srv.URL+"/page.png")
	require.NoError(t, err)
	assert.Contains(t, out, "1 text regions")
	assert.Contains(t, out, srv.URL+"/page.png: overlay in ")
}

func TestTranslate_JSON(t *testing.T) {
	srv := fakeBackend(t)
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := runCLI(t, path, "settings", "set", "backendUrl", srv.URL)
	require.NoError(t, err)

	out, err := runCLI(t, path, "translate", "--json", srv.URL+"/page.png")
	require.NoError(t, err)

	start := bytes.IndexByte([]byte(out), '{')
	require.GreaterOrEqual(t, start, 0, "no JSON in %q", out)
	var r types.Result
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(out[start:]))).Decode(&r))
	assert.Equal(t, types.ModeOverlay, r.Mode)
	require.Len(t, r.TextRegions, 1)
	assert.Equal(t, "Hello", r.TextRegions[0].TranslatedText)
}

func TestTranslate_ReplaceWritesImage(t *testing.T) {
	srv := fakeBackend(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	dir := filepath.Join(t.TempDir(), "out")

	_, err := runCLI(t, path, "settings", "set", "backendUrl", srv.URL)
	require.NoError(t, err)
	_, err = runCLI(t, path, "settings", "set", "displayMode", "replace")
	require.NoError(t, err)

	out, err := runCLI(t, path, "translate", "-o", dir, srv.URL+"/page.png")
	require.NoError(t, err)
	assert.Contains(t, out, srv.URL+"/page.png: replace in ")

	data, err := os.ReadFile(filepath.Join(dir, "page.png"))
	require.NoError(t, err)
	assert.Equal(t, "rendered", string(data))
}

func TestTranslate_UnreachableBackend(t *testing.T) {
	srv := fakeBackend(t)
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := runCLI(t, path, "settings", "set", "backendUrl", "http://127.0.0.1:1")
	require.NoError(t, err)

	out, err := runCLI(t, path, "translate", srv.URL+"/page.png")
	assert.ErrorContains(t, err, "1 of 1 images failed")
	assert.Contains(t, out, srv.URL+"/page.png: ")
}

func TestBatch_Table(t *testing.T) {
	srv := fakeBackend(t)
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := runCLI(t, path, "settings", "set", "backendUrl", srv.URL)
	require.NoError(t, err)

	out, err := runCLI(t, path, "batch", srv.URL+"/page.png?1", srv.URL+"/page.png?2")
	require.NoError(t, err)
	assert.Contains(t, out, "IMAGE")
	assert.Contains(t, out, "Batch completed! Processed 2 images.")
	assert.Contains(t, out, srv.URL+"/page.png?1")
	assert.Contains(t, out, srv.URL+"/page.png?2")
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		locator, suffix, contentType, want string
	}{
		{"https://x/p/001.jpg", "", "image/png", "001.jpg"},
		{"https://x/p/001.jpg", "-cleaned", "image/png", "001-cleaned.jpg"},
		{"https://x/p/001", "", "image/png", "001.png"},
		{"https://x/", "", "", "image"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, outputName(tt.locator, tt.suffix, tt.contentType))
		})
	}
}
