// Package ui provides terminal progress and status display for indexing
// and research runs.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents an indexing pipeline stage.
type Stage int

const (
	// StageFetching is the library item fetching stage.
	StageFetching Stage = iota
	// StageConverting is the PDF-to-markdown conversion stage.
	StageConverting
	// StageChunking is the markdown chunking stage.
	StageChunking
	// StageEmbedding is the embedding generation stage.
	StageEmbedding
	// StageIndexing is the vector index write stage.
	StageIndexing
	// StageComplete indicates indexing is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "Fetching"
	case StageConverting:
		return "Converting"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageFetching:
		return "FETCH"
	case StageConverting:
		return "CONV"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Item    string // item title or storage key being processed
	Message string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	Item   string
	Err    error
	IsWarn bool
}

// CompletionStats contains final indexing statistics.
type CompletionStats struct {
	Items    int
	Chunks   int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output  io.Writer
	NoColor bool
}

// NewRenderer creates a renderer for the given config and environment.
// Non-TTY outputs and CI environments always get uncolored output.
func NewRenderer(cfg Config) Renderer {
	if !cfg.NoColor && (!IsTTY(cfg.Output) || DetectCI() || DetectNoColor()) {
		cfg.NoColor = true
	}
	return NewPlainRenderer(cfg)
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
