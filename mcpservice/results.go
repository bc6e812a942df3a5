package mcpservice

import "github.com/ggoodman/mcp-sse-commerce/commerce"

// Code is a domain rejection code carried in {ok:false,error:<CODE>}.
type Code string

const (
	CodeProductNotFound     Code = "PRODUCT_NOT_FOUND"
	CodeCartNotFound        Code = "CART_NOT_FOUND"
	CodeProductNotAvailable Code = "PRODUCT_NOT_AVAILABLE"
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeInvalidQty          Code = "INVALID_QTY"
)

// Rejection is the result of a tool call that succeeded at the protocol
// level but whose operation was refused by a business rule.
type Rejection struct {
	OK        bool `json:"ok"`
	Error     Code `json:"error"`
	Available *int `json:"available,omitempty"`
	Requested *int `json:"requested,omitempty"`
}

func reject(code Code) *Rejection { return &Rejection{Error: code} }

func insufficientStock(available, requested int) *Rejection {
	return &Rejection{Error: CodeInsufficientStock, Available: &available, Requested: &requested}
}

// ListProductsResult is returned by list_products.
type ListProductsResult struct {
	OK       bool               `json:"ok"`
	Query    string             `json:"query"`
	Products []commerce.Product `json:"products"`
}

// ProductResult is returned by get_product.
type ProductResult struct {
	OK      bool              `json:"ok"`
	Product *commerce.Product `json:"product"`
}

// CreateCartResult is returned by create_cart.
type CreateCartResult struct {
	OK      bool  `json:"ok"`
	CartID  int64 `json:"cart_id"`
	Created bool  `json:"created"`
}

// CartResult is returned by add_item, update_cart and get_cart.
// AppliedPriceTier is set when the operation priced a line.
type CartResult struct {
	OK               bool                  `json:"ok"`
	AppliedPriceTier commerce.PriceTier    `json:"applied_price_tier,omitempty"`
	Cart             *commerce.CartSummary `json:"cart"`
}
