package convert

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	zerrors "zotra/internal/errors"
)

const lockRetryDelay = 250 * time.Millisecond

// Gateway caches markdown conversions per storage key under
// <root>/<storage-key>/<storage-key>.md. Concurrent conversions of the
// same key are serialized with a file lock, and output appears
// atomically via a temp-file rename.
type Gateway struct {
	converter    Converter
	root         string
	skipExisting bool
	logger       *slog.Logger
}

// NewGateway creates a conversion gateway writing under root.
func NewGateway(converter Converter, root string, skipExisting bool, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		converter:    converter,
		root:         root,
		skipExisting: skipExisting,
		logger:       logger.With(slog.String("component", "convert")),
	}
}

// MarkdownPath returns the cached markdown location for a storage key
// and source PDF: <root>/<storage-key>/<pdf-stem>.md.
func (g *Gateway) MarkdownPath(storageKey, pdfPath string) string {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(g.root, storageKey, stem+".md")
}

// Convert ensures the markdown for a storage key exists and returns
// its path. With skipExisting an already-converted key returns
// immediately. The source PDF is never modified.
func (g *Gateway) Convert(ctx context.Context, pdfPath, storageKey string) (string, error) {
	outputPath := g.MarkdownPath(storageKey, pdfPath)

	if g.skipExisting && fileExists(outputPath) {
		g.logger.Debug("markdown cached", slog.String("storage_key", storageKey))
		return outputPath, nil
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", zerrors.IOError("failed to create markdown directory "+dir, err)
	}

	// One conversion per storage key at a time, across processes.
	lock := flock.New(filepath.Join(dir, ".convert.lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", zerrors.IOError("failed to acquire conversion lock for "+storageKey, err)
	}
	if !locked {
		return "", zerrors.IOError("conversion lock unavailable for "+storageKey, nil)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished while we waited for the lock.
	if g.skipExisting && fileExists(outputPath) {
		return outputPath, nil
	}

	start := time.Now()
	tmpPath := outputPath + ".tmp"
	defer func() { _ = os.Remove(tmpPath) }()

	if err := g.converter.Convert(ctx, pdfPath, tmpPath); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return "", zerrors.IOError("failed to move converted markdown into place", err)
	}

	g.logger.Info("converted pdf",
		slog.String("storage_key", storageKey),
		slog.Duration("took", time.Since(start)))
	return outputPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
