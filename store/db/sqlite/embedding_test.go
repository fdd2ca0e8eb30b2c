package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32BLOBRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 0, 3.75, 1e-7}
	blob := float32ArrayToBLOB(vec)
	require.Len(t, blob, len(vec)*4)

	back, err := blobToFloat32Array(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, back)
}

func TestBlobToFloat32ArrayRejectsOddLength(t *testing.T) {
	_, err := blobToFloat32Array([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs score zero instead of NaN.
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}
