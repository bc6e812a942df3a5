package mcpservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
)

const (
	defaultProductLimit = 5
	maxProductLimit     = 20
)

func (t *Tools) listProducts(ctx context.Context, args arguments) (any, error) {
	query, _ := args.String("query")
	limit := defaultProductLimit
	if n, ok := args.Int("limit"); ok && n > 0 {
		limit = int(min(n, maxProductLimit))
	}

	products, err := t.svc.SearchProducts(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return &ListProductsResult{OK: true, Query: query, Products: products}, nil
}

func (t *Tools) getProduct(ctx context.Context, args arguments) (any, error) {
	id, err := args.requireInt("product_id")
	if err != nil {
		return nil, err
	}
	p, err := t.svc.FindProduct(ctx, id)
	if errors.Is(err, commerce.ErrNotFound) {
		return reject(CodeProductNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	return &ProductResult{OK: true, Product: p}, nil
}

func (t *Tools) createCart(ctx context.Context, args arguments) (any, error) {
	conv, err := args.requireString("conversation_id")
	if err != nil {
		return nil, err
	}
	cart, created, err := t.svc.GetOrCreateCart(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return &CreateCartResult{OK: true, CartID: cart.ID, Created: created}, nil
}

func (t *Tools) addItem(ctx context.Context, args arguments) (any, error) {
	cartID, err := args.requireInt("cart_id")
	if err != nil {
		return nil, err
	}
	productID, err := args.requireInt("product_id")
	if err != nil {
		return nil, err
	}
	qty, err := args.requireInt("qty")
	if err != nil {
		return nil, err
	}
	if qty <= 0 {
		return reject(CodeInvalidQty), nil
	}

	if rej, err := t.checkCart(ctx, cartID); rej != nil || err != nil {
		return rej, err
	}
	product, rej, err := t.checkProduct(ctx, productID)
	if rej != nil || err != nil {
		return rej, err
	}

	summary, err := t.svc.SummarizeCart(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("summarize cart: %w", err)
	}
	current := 0
	if line, ok := summary.Line(productID); ok {
		current = line.Qty
	}
	final := current + int(qty)
	if final > product.CantidadDisponible {
		return insufficientStock(product.CantidadDisponible, final), nil
	}

	return t.setLine(ctx, cartID, product, final)
}

func (t *Tools) updateCart(ctx context.Context, args arguments) (any, error) {
	cartID, err := args.requireInt("cart_id")
	if err != nil {
		return nil, err
	}
	op, ok := args.Object("operation")
	if !ok {
		return nil, missing("operation")
	}
	kind, err := op.requireString("op")
	if err != nil {
		return nil, missing("operation.op")
	}
	productID, ok := op.Int("product_id")
	if !ok {
		return nil, missing("operation.product_id")
	}

	var qty int64
	switch kind {
	case "remove":
	case "set_qty":
		if qty, ok = op.Int("qty"); !ok {
			return nil, missing("operation.qty")
		}
	default:
		return nil, fmt.Errorf("%w: unsupported operation.op %q, use set_qty or remove", ErrInvalidArguments, kind)
	}

	if rej, err := t.checkCart(ctx, cartID); rej != nil || err != nil {
		return rej, err
	}

	if kind == "remove" || qty <= 0 {
		if err := t.svc.RemoveCartItem(ctx, cartID, productID); err != nil {
			return nil, fmt.Errorf("remove cart item: %w", err)
		}
		summary, err := t.svc.SummarizeCart(ctx, cartID)
		if err != nil {
			return nil, fmt.Errorf("summarize cart: %w", err)
		}
		return &CartResult{OK: true, Cart: summary}, nil
	}

	product, rej, err := t.checkProduct(ctx, productID)
	if rej != nil || err != nil {
		return rej, err
	}
	if int(qty) > product.CantidadDisponible {
		return insufficientStock(product.CantidadDisponible, int(qty)), nil
	}
	return t.setLine(ctx, cartID, product, int(qty))
}

func (t *Tools) getCart(ctx context.Context, args arguments) (any, error) {
	var cartID int64
	if id, ok := args.Int("cart_id"); ok && id > 0 {
		cartID = id
	} else if conv, ok := args.String("conversation_id"); ok {
		cart, err := t.svc.FindCartByConversation(ctx, conv)
		switch {
		case errors.Is(err, commerce.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("find cart by conversation: %w", err)
		default:
			cartID = cart.ID
		}
	}
	if cartID == 0 {
		return nil, fmt.Errorf("%w: provide cart_id or conversation_id", ErrInvalidArguments)
	}

	summary, err := t.svc.SummarizeCart(ctx, cartID)
	if errors.Is(err, commerce.ErrNotFound) {
		return reject(CodeCartNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("summarize cart: %w", err)
	}
	return &CartResult{OK: true, Cart: summary}, nil
}

// checkCart returns a rejection when the cart does not exist.
func (t *Tools) checkCart(ctx context.Context, cartID int64) (*Rejection, error) {
	_, err := t.svc.GetCart(ctx, cartID)
	if errors.Is(err, commerce.ErrNotFound) {
		return reject(CodeCartNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return nil, nil
}

// checkProduct loads a product that can be put in a cart.
func (t *Tools) checkProduct(ctx context.Context, productID int64) (*commerce.Product, *Rejection, error) {
	p, err := t.svc.FindProduct(ctx, productID)
	if errors.Is(err, commerce.ErrNotFound) {
		return nil, reject(CodeProductNotFound), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find product: %w", err)
	}
	if !p.Disponible {
		return nil, reject(CodeProductNotAvailable), nil
	}
	return p, nil, nil
}

// setLine writes the line at qty units priced for qty and returns the
// updated cart.
func (t *Tools) setLine(ctx context.Context, cartID int64, p *commerce.Product, qty int) (any, error) {
	price, tier := commerce.PriceForQuantity(p, qty)
	if err := t.svc.UpsertCartItem(ctx, cartID, p.ID, qty, price); err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}
	summary, err := t.svc.SummarizeCart(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("summarize cart: %w", err)
	}
	return &CartResult{OK: true, AppliedPriceTier: tier, Cart: summary}, nil
}
