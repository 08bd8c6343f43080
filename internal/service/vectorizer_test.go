package service

import (
	"context"
	"errors"
	"testing"

	registryembed "github.com/chirino/weave-service/internal/registry/embed"
	"github.com/stretchr/testify/assert"
)

func TestVectorizer(t *testing.T) {
	ctx := context.Background()

	v := NewVectorizer(&fakeEmbedder{dim: 4}, 4)
	vec := v.Embed(ctx, "cedar point")
	assert.Equal(t, []float32{1, 0, 0, 0}, vec)
	assert.False(t, IsZero(vec))

	failing := NewVectorizer(&fakeEmbedder{dim: 4, err: errors.New("503")}, 4)
	assert.Equal(t, make([]float32, 4), failing.Embed(ctx, "cedar point"))

	disabled := NewVectorizer(&fakeEmbedder{dim: 4, err: registryembed.ErrDisabled}, 4)
	assert.True(t, IsZero(disabled.Embed(ctx, "x")))

	wrongShape := NewVectorizer(&fakeEmbedder{dim: 3}, 4)
	assert.Len(t, wrongShape.Embed(ctx, "x"), 4)
	assert.True(t, IsZero(wrongShape.Embed(ctx, "x")))

	none := NewVectorizer(nil, 2)
	assert.Equal(t, []float32{0, 0}, none.Embed(ctx, "x"))
	assert.Equal(t, "none", none.ModelName())
}
