package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID("doc1", 2, 7)
	b := ChunkID("doc1", 2, 7)
	assert.Equal(t, a, b)

	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestChunkID_Distinct(t *testing.T) {
	ids := map[string]bool{
		ChunkID("doc1", 1, 0): true,
		ChunkID("doc1", 1, 1): true,
		ChunkID("doc1", 2, 0): true,
		ChunkID("doc2", 1, 0): true,
	}
	assert.Len(t, ids, 4)
}
