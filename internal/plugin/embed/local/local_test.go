package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalEmbedder(t *testing.T) {
	e := New(256)
	vecs, err := e.EmbedTexts(context.Background(), []string{
		"Roller coasters at Cedar Point",
		"cedar point roller coasters!",
		"quarterly tax filing deadlines",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	for _, v := range vecs {
		assert.Len(t, v, 256)
	}

	assert.Greater(t, cosine(vecs[0], vecs[1]), 0.6)
	assert.Less(t, cosine(vecs[0], vecs[2]), 0.3)
	assert.Zero(t, cosine(vecs[3], vecs[0]), "empty text embeds to the zero vector")

	again, err := e.EmbedTexts(context.Background(), []string{"Roller coasters at Cedar Point"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again[0])
}
