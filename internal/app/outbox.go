package app

import (
	"context"
	"log/slog"

	"go.aimuz.me/comictl/internal/types"
)

// Outbox turns dispatcher and notifier calls into outbound messages.
type Outbox struct {
	sender Sender
}

// NewOutbox creates an Outbox over sender.
func NewOutbox(sender Sender) *Outbox {
	return &Outbox{sender: sender}
}

var (
	_ Dispatcher = (*Outbox)(nil)
	_ Notifier   = (*Outbox)(nil)
)

func (o *Outbox) Replace(ctx context.Context, target types.Target, handle string) error {
	return o.sender.Send(ctx, Message{
		Action:           ActionReplaceImage,
		ImageURL:         handle,
		OriginalImageURL: target.Locator,
		ImageElement:     target.Element,
	})
}

func (o *Outbox) Overlay(ctx context.Context, target types.Target, regions []types.TextRegion, cleaned string) error {
	return o.sender.Send(ctx, Message{
		Action:           ActionOverlayText,
		TextRegions:      regions,
		OriginalImageURL: target.Locator,
		ImageElement:     target.Element,
		CleanedImageURL:  cleaned,
	})
}

func (o *Outbox) OpenResult(ctx context.Context, handle string) error {
	return o.sender.Send(ctx, Message{Action: ActionOpenResult, ImageURL: handle})
}

func (o *Outbox) MarkProcessed(ctx context.Context, target types.Target, status types.ProcessStatus, errMsg string) error {
	return o.sender.Send(ctx, Message{
		Action:           ActionMarkImageProcessed,
		OriginalImageURL: target.Locator,
		ImageElement:     target.Element,
		Status:           status,
		Error:            errMsg,
	})
}

// Notify sends a process indicator update. Failures are logged only.
func (o *Outbox) Notify(ctx context.Context, n Notice) {
	o.send(ctx, Message{
		Action:   ActionUpdateProcessIndicator,
		Text:     n.Text,
		AutoHide: n.AutoHide,
		Duration: n.Duration.Milliseconds(),
	})
}

// Hide removes the process indicator.
func (o *Outbox) Hide(ctx context.Context) {
	o.send(ctx, Message{Action: ActionHideProcessIndicator})
}

// Broadcast sends msg, logging a failure.
func (o *Outbox) Broadcast(ctx context.Context, msg Message) {
	o.send(ctx, msg)
}

func (o *Outbox) send(ctx context.Context, msg Message) {
	if err := o.sender.Send(ctx, msg); err != nil {
		slog.Debug("send message", "action", msg.Action, "error", err)
	}
}
