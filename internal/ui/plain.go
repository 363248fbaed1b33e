package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs line-oriented progress, suitable for terminals,
// CI, and pipes alike.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:    cfg.Output,
		styles: GetStyles(cfg.NoColor),
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	msg := event.Message
	if msg == "" {
		msg = event.Item
	}

	tag := r.styles.Stage.Render(fmt.Sprintf("[%s]", event.Stage.Icon()))
	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "%s %d/%d - %s\n", tag, event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "%s %s\n", tag, msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := r.styles.Error.Render("ERROR")
	if event.IsWarn {
		prefix = r.styles.Warning.Render("WARN")
	}

	if event.Item != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Item, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := fmt.Sprintf("Complete: %d items, %d chunks indexed in %s",
		stats.Items, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	_, _ = fmt.Fprint(r.out, r.styles.Success.Render(summary))

	if stats.Skipped > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d skipped)", stats.Skipped)
	}
	if stats.Failed > 0 {
		_, _ = fmt.Fprint(r.out, r.styles.Warning.Render(fmt.Sprintf(" (%d failed)", stats.Failed)))
	}

	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
