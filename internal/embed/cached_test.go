package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many times the model is actually hit.
type countingEmbedder struct {
	calls      int
	batchCalls int
}

func (f *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{float32(len(text)), 1}, nil
}

func (f *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *countingEmbedder) Dimensions() int   { return 2 }
func (f *countingEmbedder) ModelName() string { return "counting" }
func (f *countingEmbedder) Close() error      { return nil }

func TestCachedEmbedder_Embed(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "query")
	require.NoError(t, err)

	second, err := c.Embed(ctx, "query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call must be served from cache")

	_, err = c.Embed(ctx, "different")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_EmbedBatchPartialHits(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "warm")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"warm", "cold"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{4, 1}, vecs[0])
	assert.Equal(t, 1, inner.batchCalls)

	// Fully cached batch makes no model call.
	_, err = c.EmbedBatch(ctx, []string{"warm", "cold"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.batchCalls)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{}, 0)
	assert.Equal(t, 2, c.Dimensions())
	assert.Equal(t, "counting", c.ModelName())
	assert.NoError(t, c.Close())
}
