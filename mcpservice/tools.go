package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
	"github.com/ggoodman/mcp-sse-commerce/internal/tracing"
	"github.com/ggoodman/mcp-sse-commerce/mcp"
)

var (
	// ErrUnknownTool is returned by Call for names outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments marks structurally invalid tool input.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// ToolName is the closed set of tools the gateway exposes.
type ToolName string

const (
	ToolListProducts ToolName = "list_products"
	ToolGetProduct   ToolName = "get_product"
	ToolCreateCart   ToolName = "create_cart"
	ToolAddItem      ToolName = "add_item"
	ToolUpdateCart   ToolName = "update_cart"
	ToolGetCart      ToolName = "get_cart"
)

// ToolNames lists the catalog in advertised order.
var ToolNames = []ToolName{
	ToolListProducts,
	ToolGetProduct,
	ToolCreateCart,
	ToolAddItem,
	ToolUpdateCart,
	ToolGetCart,
}

// ParseToolName resolves s to a catalog entry.
func ParseToolName(s string) (ToolName, bool) {
	for _, n := range ToolNames {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// Tools is the tool invocation layer: it owns the immutable catalog and
// dispatches calls to the commerce service.
type Tools struct {
	svc         commerce.Service
	log         *slog.Logger
	descriptors []mcp.Tool
}

// Option configures Tools.
type Option func(*Tools)

// WithLogger sets the logger used for tool invocations.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tools) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTools builds the catalog over svc.
func NewTools(svc commerce.Service, opts ...Option) *Tools {
	t := &Tools{
		svc:         svc,
		log:         slog.Default(),
		descriptors: catalog(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// List returns the tool descriptors. The returned slice must not be modified.
func (t *Tools) List() []mcp.Tool { return t.descriptors }

// Call invokes the named tool. Domain rejections are part of the returned
// result; an error means the call itself failed (unknown tool, invalid
// arguments or a collaborator fault).
func (t *Tools) Call(ctx context.Context, name string, raw json.RawMessage) (result any, err error) {
	tool, ok := ParseToolName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	ctx, span := tracing.StartSpan(ctx, "mcpservice.call_tool", attribute.String("mcp.tool", name))
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	defer func() {
		if err != nil {
			t.log.InfoContext(ctx, "tools.call.fail", slog.String("tool", name), slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
			return
		}
		t.log.DebugContext(ctx, "tools.call.ok", slog.String("tool", name), slog.Duration("dur", time.Since(start)))
	}()

	args, err := decodeArguments(raw)
	if err != nil {
		return nil, err
	}

	switch tool {
	case ToolListProducts:
		return t.listProducts(ctx, args)
	case ToolGetProduct:
		return t.getProduct(ctx, args)
	case ToolCreateCart:
		return t.createCart(ctx, args)
	case ToolAddItem:
		return t.addItem(ctx, args)
	case ToolUpdateCart:
		return t.updateCart(ctx, args)
	case ToolGetCart:
		return t.getCart(ctx, args)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

// Argument shapes. These are only reflected into schemas; calls are decoded
// loosely through arguments so that numeric strings are accepted.

type listProductsArgs struct {
	Query string `json:"query,omitempty" jsonschema_description:"Free text matched against garment type, category, color, size and description"`
	Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=20,default=5" jsonschema_description:"Maximum number of products to return"`
}

type getProductArgs struct {
	ProductID int64 `json:"product_id" jsonschema_description:"Product id"`
}

type createCartArgs struct {
	ConversationID string `json:"conversation_id" jsonschema_description:"Conversation the cart belongs to; one cart per conversation"`
}

type addItemArgs struct {
	CartID    int64 `json:"cart_id" jsonschema_description:"Cart id returned by create_cart"`
	ProductID int64 `json:"product_id" jsonschema_description:"Product id"`
	Qty       int   `json:"qty" jsonschema_description:"Units to add to the current line quantity"`
}

type cartOperation struct {
	Op        string `json:"op" jsonschema:"enum=set_qty,enum=remove" jsonschema_description:"set_qty replaces the line quantity; remove deletes the line"`
	ProductID int64  `json:"product_id" jsonschema_description:"Product id of the line"`
	Qty       int    `json:"qty,omitempty" jsonschema_description:"New quantity for set_qty; zero or less removes the line"`
}

type updateCartArgs struct {
	CartID    int64         `json:"cart_id" jsonschema_description:"Cart id"`
	Operation cartOperation `json:"operation"`
}

type getCartArgs struct {
	CartID         int64  `json:"cart_id,omitempty" jsonschema_description:"Cart id; takes precedence over conversation_id"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema_description:"Conversation whose cart to return"`
}

func catalog() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        string(ToolListProducts),
			Description: "Search available products, newest first.",
			InputSchema: reflectInputSchema[listProductsArgs](),
		},
		{
			Name:        string(ToolGetProduct),
			Description: "Get a product with stock and tier prices in cents.",
			InputSchema: reflectInputSchema[getProductArgs](),
		},
		{
			Name:        string(ToolCreateCart),
			Description: "Get or create the cart for a conversation.",
			InputSchema: reflectInputSchema[createCartArgs](),
		},
		{
			Name:        string(ToolAddItem),
			Description: "Add units of a product to a cart. The whole line is re-priced at the tier of its final quantity (50, 100 or 200 units).",
			InputSchema: reflectInputSchema[addItemArgs](),
		},
		{
			Name:        string(ToolUpdateCart),
			Description: "Set the quantity of a cart line or remove it.",
			InputSchema: reflectInputSchema[updateCartArgs](),
		},
		{
			Name:        string(ToolGetCart),
			Description: "Get a cart summary by cart_id or conversation_id.",
			InputSchema: reflectInputSchema[getCartArgs](),
		},
	}
}
