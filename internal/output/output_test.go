package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_StatusIcons(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("indexed 10 items")
	w.Warning("2 items skipped")
	w.Error("conversion failed")
	w.Status("", "plain line")

	out := buf.String()
	assert.Contains(t, out, "✅ indexed 10 items")
	assert.Contains(t, out, "2 items skipped")
	assert.Contains(t, out, "❌ conversion failed")
	assert.Contains(t, out, "   plain line")
}

func TestWriter_Block(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Block("line one\nline two")

	assert.Equal(t, "\n  line one\n  line two\n\n", buf.String())
}

func TestWriter_KV(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.KV("Total chunks", 340)

	assert.Contains(t, buf.String(), "Total chunks:")
	assert.Contains(t, buf.String(), "340")
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		current int
		total   int
		filled  int
	}{
		{"empty", 0, 10, 0},
		{"half", 5, 10, 15},
		{"full", 10, 10, 30},
		{"overflow clamps", 15, 10, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, 30)
			filled := 0
			for _, r := range bar {
				if r == '█' {
					filled++
				}
			}
			assert.Equal(t, tt.filled, filled)
			assert.Len(t, []rune(bar), 30)
		})
	}
}
