package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerKind_Classification(t *testing.T) {
	assert.True(t, LayerText.IsTextual())
	assert.True(t, LayerReflection.IsTextual())
	assert.True(t, LayerImage.IsMedia())
	assert.True(t, LayerAudio.IsMedia())
	assert.True(t, LayerVideo.IsMedia())
	assert.False(t, LayerLink.IsMedia())
	assert.False(t, LayerLink.IsTextual())
	assert.True(t, LayerLink.Valid())
	assert.False(t, LayerKind("GIF").Valid())
	assert.False(t, LayerKind("text").Valid())
}

func TestRole_Permissions(t *testing.T) {
	assert.True(t, RoleOwner.CanContribute())
	assert.True(t, RoleContributor.CanContribute())
	assert.False(t, RoleViewer.CanContribute())

	assert.False(t, RoleOwner.Grantable())
	assert.True(t, RoleContributor.Grantable())
	assert.True(t, RoleViewer.Grantable())
	assert.False(t, Role("ADMIN").Valid())
}

func TestEnumsValid(t *testing.T) {
	for _, v := range []Visibility{VisibilityPrivate, VisibilityShared, VisibilityPublic} {
		assert.True(t, v.Valid(), v)
	}
	assert.False(t, Visibility("FRIENDS").Valid())

	for _, r := range []Relation{RelationSamePerson, RelationSameEvent, RelationTheme, RelationEmotion, RelationTimeNear} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Relation("LOVES").Valid())
}

func TestIdempotencyRecord_Completed(t *testing.T) {
	var missing *IdempotencyRecord
	require.False(t, missing.Completed())

	claimed := &IdempotencyRecord{UserID: "alice", Endpoint: "/v1/memories", Key: "k1"}
	require.False(t, claimed.Completed())

	id := uuid.New()
	claimed.ResourceID = &id
	require.True(t, claimed.Completed())
}
