package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go.aimuz.me/comictl/internal/app"
	"go.aimuz.me/comictl/internal/types"
	"go.aimuz.me/comictl/media"
)

var (
	outDir     string
	jsonOutput bool
)

var translateCmd = &cobra.Command{
	Use:   "translate URL...",
	Short: "Translate page images one at a time",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		out := cmd.OutOrStdout()

		svc, err := newService(ctx, newConsoleSender(out))
		if err != nil {
			return err
		}
		defer svc.Shutdown()

		var failed int
		for _, locator := range args {
			start := time.Now()
			res, err := svc.Retry().Translate(ctx, app.Request{Locator: locator, Manual: true})
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s: %v\n", locator, err)
				continue
			}

			if err := report(out, locator, res, jsonOutput, time.Since(start)); err != nil {
				return err
			}
			if outDir != "" {
				if err := saveImages(svc.Media(), locator, res.Result); err != nil {
					return err
				}
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d images failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	translateCmd.Flags().StringVarP(&outDir, "out", "o", "", "write rendered images to this directory")
	translateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.AddCommand(translateCmd)
}

func report(w io.Writer, locator string, out app.Outcome, asJSON bool, took time.Duration) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Result)
	}

	switch {
	case out.Rejected:
		_, err := fmt.Fprintf(w, "%s: already in progress\n", locator)
		return err
	case out.CacheHit:
		_, err := fmt.Fprintf(w, "%s: %s (cached)\n", locator, out.Result.Mode)
		return err
	default:
		_, err := fmt.Fprintf(w, "%s: %s in %s\n", locator, out.Result.Mode, durationMillis(took))
		return err
	}
}

// saveImages writes the image bodies a result refers to into outDir.
func saveImages(reg *media.Registry, locator string, r types.Result) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for suffix, handle := range map[string]string{"": r.ImageURL, "-cleaned": r.CleanedImageURL} {
		if !media.IsHandle(handle) {
			continue
		}
		blob, ok := reg.Open(handle)
		if !ok {
			// Cached handles from a previous run no longer resolve.
			continue
		}
		name := outputName(locator, suffix, blob.ContentType)
		if err := os.WriteFile(filepath.Join(outDir, name), blob.Data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		reg.Revoke(handle)
	}
	return nil
}

func outputName(locator, suffix, contentType string) string {
	base := "image"
	if u, err := url.Parse(locator); err == nil {
		if b := path.Base(u.Path); b != "/" && b != "." {
			base = b
		}
	}
	ext := path.Ext(base)
	base = strings.TrimSuffix(base, ext)

	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return base + suffix + ext
}
