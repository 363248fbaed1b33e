package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConverter writes canned content and counts invocations.
type fakeConverter struct {
	content string
	calls   int
	err     error
}

func (f *fakeConverter) Convert(_ context.Context, pdfPath, outputPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte(f.content), 0o644)
}

func writeTestPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func TestGateway_Convert(t *testing.T) {
	root := t.TempDir()
	fc := &fakeConverter{content: "# Converted\n\nbody\n"}
	g := NewGateway(fc, root, true, nil)

	mdPath, err := g.Convert(context.Background(), writeTestPDF(t), "STOR1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "STOR1", "doc.md"), mdPath)

	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, "# Converted\n\nbody\n", string(data))
	assert.Equal(t, 1, fc.calls)
}

func TestGateway_SkipExisting(t *testing.T) {
	root := t.TempDir()
	fc := &fakeConverter{content: "first"}
	g := NewGateway(fc, root, true, nil)
	pdf := writeTestPDF(t)

	_, err := g.Convert(context.Background(), pdf, "STOR1")
	require.NoError(t, err)

	fc.content = "second"
	mdPath, err := g.Convert(context.Background(), pdf, "STOR1")
	require.NoError(t, err)

	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data), "cached markdown must be reused")
	assert.Equal(t, 1, fc.calls)
}

func TestGateway_ForceReconverts(t *testing.T) {
	root := t.TempDir()
	fc := &fakeConverter{content: "first"}
	pdf := writeTestPDF(t)

	_, err := NewGateway(fc, root, true, nil).Convert(context.Background(), pdf, "STOR1")
	require.NoError(t, err)

	fc.content = "second"
	mdPath, err := NewGateway(fc, root, false, nil).Convert(context.Background(), pdf, "STOR1")
	require.NoError(t, err)

	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.Equal(t, 2, fc.calls)
}

func TestGateway_FailureLeavesNoPartialOutput(t *testing.T) {
	root := t.TempDir()
	fc := &fakeConverter{err: errors.New("converter crashed")}
	g := NewGateway(fc, root, true, nil)

	_, err := g.Convert(context.Background(), writeTestPDF(t), "STOR1")
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(root, "STOR1", "doc.md"))
	assert.NoFileExists(t, filepath.Join(root, "STOR1", "doc.md.tmp"))
}

func TestGateway_SourcePDFUntouched(t *testing.T) {
	pdf := writeTestPDF(t)
	before, err := os.ReadFile(pdf)
	require.NoError(t, err)

	g := NewGateway(&fakeConverter{content: "md"}, t.TempDir(), true, nil)
	_, err = g.Convert(context.Background(), pdf, "STOR1")
	require.NoError(t, err)

	after, err := os.ReadFile(pdf)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCommandConverter_MissingCommand(t *testing.T) {
	c := &CommandConverter{}
	err := c.Convert(context.Background(), "in.pdf", "out.md")
	assert.Error(t, err)
}

func TestCommandConverter_MissingPDF(t *testing.T) {
	c := &CommandConverter{Command: "true"}
	err := c.Convert(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), "out.md")
	assert.Error(t, err)
}

func TestCommandConverter_RunsCommand(t *testing.T) {
	pdf := writeTestPDF(t)
	out := filepath.Join(t.TempDir(), "out.md")

	c := &CommandConverter{Command: "cp"}
	require.NoError(t, c.Convert(context.Background(), pdf, out))
	assert.FileExists(t, out)
}

func TestCommandConverter_NoOutputIsError(t *testing.T) {
	pdf := writeTestPDF(t)
	out := filepath.Join(t.TempDir(), "out.md")

	c := &CommandConverter{Command: "true"}
	err := c.Convert(context.Background(), pdf, out)
	assert.Error(t, err, "a converter that writes nothing must fail")
}
