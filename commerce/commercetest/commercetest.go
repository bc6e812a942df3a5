// Package commercetest provides a conformance suite for commerce.Service
// implementations.
package commercetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
)

// Backend is a Service that can also be seeded.
type Backend interface {
	commerce.Service
	commerce.CatalogWriter
}

// ServiceFactory creates an empty backend for a single test.
type ServiceFactory func(t *testing.T) Backend

// Fixture returns the products every suite test starts from.
func Fixture() []commerce.Product {
	return []commerce.Product{
		{ID: 1, TipoPrenda: "Camiseta", Talla: "M", Color: "Rojo", CantidadDisponible: 500, Precio50UCents: 1000, Precio100UCents: 900, Precio200UCents: 800, Disponible: true, Categoria: "Casual", Descripcion: "Algodon peinado"},
		{ID: 2, TipoPrenda: "Pantalon", Talla: "L", Color: "Azul", CantidadDisponible: 150, Precio50UCents: 2500, Precio100UCents: 2300, Precio200UCents: 2100, Disponible: true, Categoria: "Formal", Descripcion: "Gabardina"},
		{ID: 3, TipoPrenda: "Camiseta", Talla: "S", Color: "Verde", CantidadDisponible: 10, Precio50UCents: 1100, Precio100UCents: 1000, Precio200UCents: 900, Disponible: false, Categoria: "Deportivo", Descripcion: "Dry fit"},
	}
}

// RunServiceTests runs the Service conformance suite against the factory.
func RunServiceTests(t *testing.T, factory ServiceFactory) {
	t.Run("Products_FindExistingAndMissing", func(t *testing.T) { testFindProduct(t, factory) })
	t.Run("Products_SearchOnlyAvailableNewestFirst", func(t *testing.T) { testSearchProducts(t, factory) })
	t.Run("Products_UpsertReplacesRow", func(t *testing.T) { testUpsertProducts(t, factory) })
	t.Run("Carts_GetOrCreateIsIdempotentPerConversation", func(t *testing.T) { testGetOrCreateCart(t, factory) })
	t.Run("Carts_LookupMissing", func(t *testing.T) { testCartLookupMissing(t, factory) })
	t.Run("Items_UpsertOverwritesLine", func(t *testing.T) { testUpsertCartItem(t, factory) })
	t.Run("Items_RemoveAndSummaryOrder", func(t *testing.T) { testRemoveCartItem(t, factory) })
	t.Run("Items_UpsertBumpsUpdatedAt", func(t *testing.T) { testUpdatedAt(t, factory) })
}

func seeded(t *testing.T, factory ServiceFactory) Backend {
	t.Helper()
	b := factory(t)
	require.NoError(t, b.UpsertProducts(context.Background(), Fixture()))
	return b
}

func testFindProduct(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	p, err := b.FindProduct(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "Pantalon", p.TipoPrenda)
	require.Equal(t, int64(2300), p.Precio100UCents)
	require.True(t, p.Disponible)

	p, err = b.FindProduct(ctx, 3)
	require.NoError(t, err)
	require.False(t, p.Disponible)

	_, err = b.FindProduct(ctx, 99)
	require.True(t, errors.Is(err, commerce.ErrNotFound), "got %v", err)
}

func testSearchProducts(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	all, err := b.SearchProducts(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int64(2), all[0].ID)
	require.Equal(t, int64(1), all[1].ID)

	hits, err := b.SearchProducts(ctx, "camiseta", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(1), hits[0].ID)

	hits, err = b.SearchProducts(ctx, "gabard", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(2), hits[0].ID)

	limited, err := b.SearchProducts(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	none, err := b.SearchProducts(ctx, "zzz", 5)
	require.NoError(t, err)
	require.Empty(t, none)
}

func testUpsertProducts(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	updated := Fixture()[0]
	updated.CantidadDisponible = 7
	updated.Color = "Negro"
	require.NoError(t, b.UpsertProducts(ctx, []commerce.Product{updated}))

	p, err := b.FindProduct(ctx, updated.ID)
	require.NoError(t, err)
	require.Equal(t, 7, p.CantidadDisponible)
	require.Equal(t, "Negro", p.Color)
}

func testGetOrCreateCart(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	c1, created, err := b.GetOrCreateCart(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, created)
	require.NotZero(t, c1.ID)
	require.Equal(t, "conv-1", c1.ConversationID)

	c2, created, err := b.GetOrCreateCart(ctx, "conv-1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, c1.ID, c2.ID)

	c3, created, err := b.GetOrCreateCart(ctx, "conv-2")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, c1.ID, c3.ID)

	byConv, err := b.FindCartByConversation(ctx, "conv-2")
	require.NoError(t, err)
	require.Equal(t, c3.ID, byConv.ID)

	got, err := b.GetCart(ctx, c1.ID)
	require.NoError(t, err)
	require.Equal(t, "conv-1", got.ConversationID)
}

func testCartLookupMissing(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	_, err := b.GetCart(ctx, 404)
	require.True(t, errors.Is(err, commerce.ErrNotFound), "got %v", err)
	_, err = b.FindCartByConversation(ctx, "nobody")
	require.True(t, errors.Is(err, commerce.ErrNotFound), "got %v", err)
	_, err = b.SummarizeCart(ctx, 404)
	require.True(t, errors.Is(err, commerce.ErrNotFound), "got %v", err)
}

func testUpsertCartItem(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	c, _, err := b.GetOrCreateCart(ctx, "conv-items")
	require.NoError(t, err)

	require.NoError(t, b.UpsertCartItem(ctx, c.ID, 1, 60, 1000))
	require.NoError(t, b.UpsertCartItem(ctx, c.ID, 1, 120, 900))

	s, err := b.SummarizeCart(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, s.CartID)
	require.Len(t, s.Items, 1)
	line := s.Items[0]
	require.Equal(t, 120, line.Qty)
	require.Equal(t, int64(900), line.UnitPriceCents)
	require.Equal(t, int64(108000), line.LineTotalCents)
	require.Equal(t, "Camiseta", line.TipoPrenda)
	require.Equal(t, "Casual", line.Categoria)
	require.Equal(t, int64(108000), s.TotalCents)
}

func testRemoveCartItem(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	c, _, err := b.GetOrCreateCart(ctx, "conv-remove")
	require.NoError(t, err)

	require.NoError(t, b.UpsertCartItem(ctx, c.ID, 2, 1, 2500))
	require.NoError(t, b.UpsertCartItem(ctx, c.ID, 1, 3, 1000))

	s, err := b.SummarizeCart(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, s.Items, 2)
	require.Equal(t, int64(2), s.Items[0].ProductID)
	require.Equal(t, int64(1), s.Items[1].ProductID)
	require.Equal(t, int64(5500), s.TotalCents)

	require.NoError(t, b.RemoveCartItem(ctx, c.ID, 2))
	require.NoError(t, b.RemoveCartItem(ctx, c.ID, 2))

	s, err = b.SummarizeCart(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	require.Equal(t, int64(1), s.Items[0].ProductID)
	require.Equal(t, int64(3000), s.TotalCents)
}

func testUpdatedAt(t *testing.T, factory ServiceFactory) {
	ctx := context.Background()
	b := seeded(t, factory)

	c, _, err := b.GetOrCreateCart(ctx, "conv-ts")
	require.NoError(t, err)
	require.False(t, c.UpdatedAt.IsZero())

	require.NoError(t, b.UpsertCartItem(ctx, c.ID, 1, 1, 1000))
	after, err := b.GetCart(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, after.UpdatedAt.Before(c.UpdatedAt.Truncate(time.Second)))
}
