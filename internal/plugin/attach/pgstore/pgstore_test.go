package pgstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/chirino/weave-service/internal/config"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	"github.com/chirino/weave-service/internal/testutil/testpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgArtifactStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBURL = testpg.StartPostgres(t)
	cfg.TempDir = t.TempDir()
	ctx := config.WithContext(context.Background(), &cfg)

	store, err := load(ctx)
	require.NoError(t, err)

	// Spans more than one lo_get page.
	payload := strings.Repeat("roller coaster ", chunkSize/10)
	res, err := store.Put(ctx, "mem/m1/ignored.txt", strings.NewReader(payload), int64(len(payload)), "text/plain")
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(payload))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.SHA256)
	assert.EqualValues(t, len(payload), res.Size)
	assert.NotEqual(t, "mem/m1/ignored.txt", res.StorageKey)

	body, err := store.Get(ctx, res.StorageKey)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, body.Close())
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	_, err = store.PresignGet(ctx, res.StorageKey, time.Minute)
	require.ErrorIs(t, err, registryattach.ErrPresignUnsupported)

	require.NoError(t, store.Delete(ctx, res.StorageKey))
	_, err = store.Get(ctx, res.StorageKey)
	require.Error(t, err)

	_, err = store.Put(ctx, "k", strings.NewReader("too large"), 3, "text/plain")
	require.ErrorAs(t, err, new(*registryattach.TooLargeError))

	_, err = store.Get(ctx, "not-an-oid")
	require.Error(t, err)
}
