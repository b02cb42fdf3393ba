package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/research/internal/testutil"
	"github.com/xhad/research/pkg/store"
)

func TestNew(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewHashEmbedder()

	s, err := store.New(ctx, store.StoreConfig{Chromem: store.ChromemConfig{Path: t.TempDir()}}, embedder, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.ChromemStore{}, s)

	_, err = store.New(ctx, store.StoreConfig{Backend: "sqlite"}, embedder, nil)
	assert.ErrorIs(t, err, store.ErrUnknownBackend)

	_, err = store.New(ctx, store.StoreConfig{}, nil, nil)
	assert.Error(t, err)

	_, err = store.New(ctx, store.StoreConfig{Backend: store.BackendPgVector}, embedder, nil)
	assert.Error(t, err)
}

func TestChromemConfigDefaults(t *testing.T) {
	config := store.ChromemConfig{}
	config.ApplyDefaults()
	assert.Equal(t, store.DefaultCollection, config.Collection)
	assert.Contains(t, config.Path, "vectorstore")
}
