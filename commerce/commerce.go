package commerce

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Service lookups when the entity does not exist.
var ErrNotFound = errors.New("commerce: not found")

// Product is a catalog entry. Field names follow the catalog sheet the
// products are imported from.
type Product struct {
	ID                 int64  `json:"id" yaml:"id"`
	TipoPrenda         string `json:"tipo_prenda" yaml:"tipo_prenda"`
	Talla              string `json:"talla" yaml:"talla"`
	Color              string `json:"color" yaml:"color"`
	CantidadDisponible int    `json:"cantidad_disponible" yaml:"cantidad_disponible"`
	Precio50UCents     int64  `json:"precio_50_u_cents" yaml:"precio_50_u_cents"`
	Precio100UCents    int64  `json:"precio_100_u_cents" yaml:"precio_100_u_cents"`
	Precio200UCents    int64  `json:"precio_200_u_cents" yaml:"precio_200_u_cents"`
	Disponible         bool   `json:"disponible" yaml:"disponible"`
	Categoria          string `json:"categoria" yaml:"categoria"`
	Descripcion        string `json:"descripcion" yaml:"descripcion"`
}

// Cart is a shopping cart owned by a single agent conversation.
type Cart struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CartItem is one product line of a cart. UnitPriceCents is the tier price
// for Qty at the time the line was last written.
type CartItem struct {
	ID             int64 `json:"id"`
	CartID         int64 `json:"cart_id"`
	ProductID      int64 `json:"product_id"`
	Qty            int   `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// CartLine is a cart item joined with its product attributes.
type CartLine struct {
	ProductID      int64  `json:"product_id"`
	TipoPrenda     string `json:"tipo_prenda"`
	Talla          string `json:"talla"`
	Color          string `json:"color"`
	Categoria      string `json:"categoria"`
	Descripcion    string `json:"descripcion"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// CartSummary is the priced view of a cart. Items are in insertion order.
type CartSummary struct {
	CartID     int64      `json:"cart_id"`
	Items      []CartLine `json:"items"`
	TotalCents int64      `json:"total_cents"`
}

// Line returns the summary line for productID, if present.
func (s *CartSummary) Line(productID int64) (CartLine, bool) {
	for _, l := range s.Items {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// Service is the contract between the tool layer and a commerce backend.
// Implementations must be safe for concurrent use. Lookups of missing
// entities return ErrNotFound; any other error is an infrastructure failure.
type Service interface {
	FindProduct(ctx context.Context, id int64) (*Product, error)
	// SearchProducts returns available products matching query (all
	// available products when query is empty), newest first.
	SearchProducts(ctx context.Context, query string, limit int) ([]Product, error)

	// GetOrCreateCart returns the cart for conversationID, creating it when
	// absent. created reports whether this call created it.
	GetOrCreateCart(ctx context.Context, conversationID string) (cart *Cart, created bool, err error)
	GetCart(ctx context.Context, id int64) (*Cart, error)
	FindCartByConversation(ctx context.Context, conversationID string) (*Cart, error)

	// UpsertCartItem sets the line for productID to exactly qty units at
	// unitPriceCents and bumps the cart's updated_at.
	UpsertCartItem(ctx context.Context, cartID, productID int64, qty int, unitPriceCents int64) error
	// RemoveCartItem deletes the line for productID. Removing an absent
	// line is not an error.
	RemoveCartItem(ctx context.Context, cartID, productID int64) error
	SummarizeCart(ctx context.Context, cartID int64) (*CartSummary, error)
}

// CatalogWriter is implemented by backends whose catalog can be (re)seeded.
type CatalogWriter interface {
	UpsertProducts(ctx context.Context, products []Product) error
}

// Summarize builds a CartSummary from priced lines.
func Summarize(cartID int64, lines []CartLine) *CartSummary {
	s := &CartSummary{CartID: cartID, Items: make([]CartLine, 0, len(lines))}
	for _, l := range lines {
		l.LineTotalCents = int64(l.Qty) * l.UnitPriceCents
		s.TotalCents += l.LineTotalCents
		s.Items = append(s.Items, l)
	}
	return s
}
