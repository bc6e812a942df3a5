// Package memory provides an in-process commerce.Service backed by maps
// guarded by a single mutex. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
)

var (
	_ commerce.Service       = (*Store)(nil)
	_ commerce.CatalogWriter = (*Store)(nil)
)

// Store is an in-memory commerce backend.
type Store struct {
	mu         sync.Mutex
	products   map[int64]commerce.Product
	carts      map[int64]*commerce.Cart
	byConv     map[string]int64
	items      []commerce.CartItem
	nextCartID int64
	nextItemID int64
	now        func() time.Time
}

// New returns an empty store seeded with the given products.
func New(products ...commerce.Product) *Store {
	s := &Store{
		products: make(map[int64]commerce.Product),
		carts:    make(map[int64]*commerce.Cart),
		byConv:   make(map[string]int64),
		now:      time.Now,
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) UpsertProducts(_ context.Context, products []commerce.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = p
	}
	return nil
}

func (s *Store) FindProduct(_ context.Context, id int64) (*commerce.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &p, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]commerce.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]commerce.Product, 0)
	for _, p := range s.products {
		if !p.Disponible {
			continue
		}
		if q != "" && !matches(p, q) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// matches mirrors a case-insensitive LIKE '%q%' over the text columns.
func matches(p commerce.Product, q string) bool {
	for _, field := range []string{p.TipoPrenda, p.Categoria, p.Color, p.Talla, p.Descripcion} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (s *Store) GetOrCreateCart(_ context.Context, conversationID string) (*commerce.Cart, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byConv[conversationID]; ok {
		c := *s.carts[id]
		return &c, false, nil
	}
	s.nextCartID++
	c := &commerce.Cart{ID: s.nextCartID, ConversationID: conversationID, UpdatedAt: s.now()}
	s.carts[c.ID] = c
	s.byConv[conversationID] = c.ID
	cp := *c
	return &cp, true, nil
}

func (s *Store) GetCart(_ context.Context, id int64) (*commerce.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) FindCartByConversation(_ context.Context, conversationID string) (*commerce.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byConv[conversationID]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	cp := *s.carts[id]
	return &cp, nil
}

func (s *Store) UpsertCartItem(_ context.Context, cartID, productID int64, qty int, unitPriceCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[cartID]
	if !ok {
		return commerce.ErrNotFound
	}
	if _, ok := s.products[productID]; !ok {
		return commerce.ErrNotFound
	}
	c.UpdatedAt = s.now()
	for i := range s.items {
		if s.items[i].CartID == cartID && s.items[i].ProductID == productID {
			s.items[i].Qty = qty
			s.items[i].UnitPriceCents = unitPriceCents
			return nil
		}
	}
	s.nextItemID++
	s.items = append(s.items, commerce.CartItem{
		ID:             s.nextItemID,
		CartID:         cartID,
		ProductID:      productID,
		Qty:            qty,
		UnitPriceCents: unitPriceCents,
	})
	return nil
}

func (s *Store) RemoveCartItem(_ context.Context, cartID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[cartID]
	if !ok {
		return commerce.ErrNotFound
	}
	c.UpdatedAt = s.now()
	kept := s.items[:0]
	for _, it := range s.items {
		if it.CartID == cartID && it.ProductID == productID {
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return nil
}

func (s *Store) SummarizeCart(_ context.Context, cartID int64) (*commerce.CartSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return nil, commerce.ErrNotFound
	}
	var lines []commerce.CartLine
	for _, it := range s.items {
		if it.CartID != cartID {
			continue
		}
		p := s.products[it.ProductID]
		lines = append(lines, commerce.CartLine{
			ProductID:      it.ProductID,
			TipoPrenda:     p.TipoPrenda,
			Talla:          p.Talla,
			Color:          p.Color,
			Categoria:      p.Categoria,
			Descripcion:    p.Descripcion,
			Qty:            it.Qty,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return commerce.Summarize(cartID, lines), nil
}
