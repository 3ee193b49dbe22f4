package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	questions []string
	err       error
	block     bool
	calls     int
}

func (g *scriptedGenerator) Generate(ctx context.Context) ([]string, error) {
	g.calls++
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.questions, nil
}

var testFallback = []string{"F0", "F1"}

func TestCatalogService(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("generates once and persists", func(t *testing.T) {
		store := newMemCatalogStore()
		generator := &scriptedGenerator{questions: []string{"G0", "G1", "G2"}}
		svc := NewCatalogService(store, generator, testFallback, time.Second, logger)

		catalog, err := svc.GetOrCreate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"G0", "G1", "G2"}, catalog.Questions)
		assert.Equal(t, 3, catalog.Total)
		assert.False(t, catalog.GeneratedAt.IsZero())

		again, err := svc.GetOrCreate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, catalog.Questions, again.Questions)
		assert.Equal(t, 1, generator.calls)
	})

	t.Run("generator error falls back to the static list", func(t *testing.T) {
		store := newMemCatalogStore()
		generator := &scriptedGenerator{err: fmt.Errorf("model unavailable")}
		svc := NewCatalogService(store, generator, testFallback, time.Second, logger)

		catalog, err := svc.GetOrCreate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, testFallback, catalog.Questions)
	})

	t.Run("generator timeout falls back to the static list", func(t *testing.T) {
		store := newMemCatalogStore()
		generator := &scriptedGenerator{block: true}
		svc := NewCatalogService(store, generator, testFallback, 20*time.Millisecond, logger)

		catalog, err := svc.GetOrCreate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, testFallback, catalog.Questions)
	})

	t.Run("fallback catalog is persisted like any other", func(t *testing.T) {
		store := newMemCatalogStore()
		failing := &scriptedGenerator{err: fmt.Errorf("model unavailable")}
		svc := NewCatalogService(store, failing, testFallback, time.Second, logger)

		_, err := svc.GetOrCreate(ctx, "u1")
		require.NoError(t, err)

		// A later healthy generator must not replace the persisted copy.
		recovered := NewCatalogService(store, &scriptedGenerator{questions: []string{"new"}}, testFallback, time.Second, logger)
		catalog, err := recovered.GetOrCreate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, testFallback, catalog.Questions)
	})

	t.Run("peek does not generate", func(t *testing.T) {
		store := newMemCatalogStore()
		generator := &scriptedGenerator{questions: []string{"G0"}}
		svc := NewCatalogService(store, generator, testFallback, time.Second, logger)

		_, err := svc.Peek(ctx, "u1")
		assert.Error(t, err)
		assert.Zero(t, generator.calls)
	})
}
