package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.aimuz.me/comictl/internal/app"
	"go.aimuz.me/comictl/internal/types"
)

// consoleSender prints outbound messages for a terminal user.
type consoleSender struct {
	mu sync.Mutex
	w  io.Writer
}

var _ app.Sender = (*consoleSender)(nil)

func newConsoleSender(w io.Writer) *consoleSender {
	return &consoleSender{w: w}
}

func (c *consoleSender) Send(_ context.Context, msg app.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch msg.Action {
	case app.ActionUpdateProcessIndicator:
		_, err = fmt.Fprintf(c.w, "» %s\n", msg.Text)
	case app.ActionOverlayText:
		_, err = fmt.Fprintf(c.w, "  %s: %d text regions\n", msg.OriginalImageURL, len(msg.TextRegions))
	case app.ActionReplaceImage:
		_, err = fmt.Fprintf(c.w, "  %s: rendered %s\n", msg.OriginalImageURL, msg.ImageURL)
	case app.ActionOpenResult:
		_, err = fmt.Fprintf(c.w, "  result ready: %s\n", msg.ImageURL)
	case app.ActionMarkImageProcessed:
		if msg.Status == types.StatusError {
			_, err = fmt.Fprintf(c.w, "  %s: %s\n", msg.OriginalImageURL, msg.Error)
		}
	}
	return err
}
