// Package convert turns PDF attachments into markdown through an
// external converter command, caching output per storage key.
package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	zerrors "zotra/internal/errors"
)

// Converter produces a markdown file from a PDF.
type Converter interface {
	Convert(ctx context.Context, pdfPath, outputPath string) error
}

// CommandConverter shells out to an external PDF-to-markdown command,
// invoked as: <command> [args...] <pdf-path> <output-path>.
type CommandConverter struct {
	Command string
	Args    []string
}

var _ Converter = (*CommandConverter)(nil)

// Convert runs the converter command. The command must write the
// markdown to outputPath itself.
func (c *CommandConverter) Convert(ctx context.Context, pdfPath, outputPath string) error {
	if c.Command == "" {
		return zerrors.New(zerrors.ErrCodeConfigInvalid,
			"no converter command configured", nil).
			WithSuggestion("set markdown.converter_command in the config file")
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return zerrors.New(zerrors.ErrCodePDFMissing, "pdf not readable: "+pdfPath, err)
	}

	args := append(append([]string{}, c.Args...), pdfPath, outputPath)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return zerrors.New(zerrors.ErrCodeConvertFailed,
			fmt.Sprintf("converter %s failed: %s", c.Command, truncate(strings.TrimSpace(string(out)), 300)), err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return zerrors.New(zerrors.ErrCodeConvertFailed,
			"converter exited cleanly but produced no output at "+outputPath, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
