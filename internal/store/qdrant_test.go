package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitQdrantAddr(t *testing.T) {
	tests := []struct {
		addr string
		host string
		port int
	}{
		{"localhost:6334", "localhost", 6334},
		{"qdrant.internal:7000", "qdrant.internal", 7000},
		{"localhost", "localhost", 6334},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port, err := splitQdrantAddr(tt.addr)
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestQdrantFilter(t *testing.T) {
	assert.Nil(t, qdrantFilter(nil))
	assert.Nil(t, qdrantFilter(Filter{}))

	qf := qdrantFilter(Filter{"item_id": "AAAA", "citation_key": "doe_2024"})
	require.NotNil(t, qf)
	assert.Len(t, qf.Must, 2)
}

func TestChunkPayloadRoundTrip(t *testing.T) {
	in := testChunk("AAAA", 2, "payload content")
	in.Table = 3
	in.AddedAt = 1700000000
	in.Extra = map[string]string{"doi": "10.1000/xyz"}

	payload, err := chunkPayload(&in)
	require.NoError(t, err)

	out, err := chunkFromPayload(in.UID, payload)
	require.NoError(t, err)

	assert.Equal(t, in.UID, out.UID)
	assert.Equal(t, in.ItemID, out.ItemID)
	assert.Equal(t, in.StorageKey, out.StorageKey)
	assert.Equal(t, in.CitationKey, out.CitationKey)
	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, in.SplitID, out.SplitID)
	assert.Equal(t, in.Levels, out.Levels)
	assert.Equal(t, in.Table, out.Table)
	assert.Equal(t, in.Length, out.Length)
	assert.Equal(t, in.AddedAt, out.AddedAt)
	assert.Equal(t, in.Content, out.Content)
	assert.Equal(t, in.Extra, out.Extra)
}
