package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
	"github.com/ggoodman/mcp-sse-commerce/commerce/commercetest"
	"github.com/ggoodman/mcp-sse-commerce/commerce/memory"
)

func newTestTools(t *testing.T) (*Tools, *memory.Store) {
	t.Helper()
	store := memory.New(commercetest.Fixture()...)
	return NewTools(store), store
}

func call(t *testing.T, tools *Tools, name, args string) any {
	t.Helper()
	res, err := tools.Call(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s(%s): %v", name, args, err)
	}
	return res
}

func cartFor(t *testing.T, tools *Tools, conv string) int64 {
	t.Helper()
	res := call(t, tools, "create_cart", `{"conversation_id":"`+conv+`"}`).(*CreateCartResult)
	return res.CartID
}

func TestCatalogContract(t *testing.T) {
	tools, _ := newTestTools(t)
	list := tools.List()

	var names []string
	for _, tool := range list {
		names = append(names, tool.Name)
	}
	want := []string{"list_products", "get_product", "create_cart", "add_item", "update_cart", "get_cart"}
	if !slices.Equal(want, names) {
		t.Fatalf("want %v, got %v", want, names)
	}

	required := map[string][]string{
		"list_products": nil,
		"get_product":   {"product_id"},
		"create_cart":   {"conversation_id"},
		"add_item":      {"cart_id", "product_id", "qty"},
		"update_cart":   {"cart_id", "operation"},
		"get_cart":      nil,
	}
	for _, tool := range list {
		got := slices.Clone(tool.InputSchema.Required)
		slices.Sort(got)
		exp := slices.Clone(required[tool.Name])
		slices.Sort(exp)
		if !slices.Equal(exp, got) {
			t.Fatalf("%s required: want %v, got %v", tool.Name, exp, got)
		}
		if tool.InputSchema.Type != "object" {
			t.Fatalf("%s schema type: %q", tool.Name, tool.InputSchema.Type)
		}
	}

	update := list[4].InputSchema.Properties["operation"]
	if want, got := "object", update.Type; want != got {
		t.Fatalf("operation type: want %q, got %q", want, got)
	}
	opReq := slices.Clone(update.Required)
	slices.Sort(opReq)
	if want := []string{"op", "product_id"}; !slices.Equal(want, opReq) {
		t.Fatalf("operation required: want %v, got %v", want, opReq)
	}
	if want, got := []any{"set_qty", "remove"}, update.Properties["op"].Enum; !slices.Equal(want, got) {
		t.Fatalf("op enum: want %v, got %v", want, got)
	}

	limit := list[0].InputSchema.Properties["limit"]
	if limit.Maximum == nil || *limit.Maximum != 20 {
		t.Fatalf("limit maximum: %v", limit.Maximum)
	}
}

func TestUnknownTool(t *testing.T) {
	tools, _ := newTestTools(t)
	_, err := tools.Call(context.Background(), "checkout", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestListProducts(t *testing.T) {
	tools, _ := newTestTools(t)

	res := call(t, tools, "list_products", `{}`).(*ListProductsResult)
	if !res.OK || len(res.Products) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Products[0].ID != 2 {
		t.Fatalf("expected newest first, got %d", res.Products[0].ID)
	}

	res = call(t, tools, "list_products", `{"query":" camiseta ","limit":"1"}`).(*ListProductsResult)
	if want, got := "camiseta", res.Query; want != got {
		t.Fatalf("query: want %q, got %q", want, got)
	}
	if len(res.Products) != 1 || res.Products[0].ID != 1 {
		t.Fatalf("unexpected products: %+v", res.Products)
	}

	res = call(t, tools, "list_products", `{"limit":500}`).(*ListProductsResult)
	if len(res.Products) != 2 {
		t.Fatalf("expected clamp to still return all 2, got %d", len(res.Products))
	}
}

func TestGetProduct(t *testing.T) {
	tools, _ := newTestTools(t)

	res := call(t, tools, "get_product", `{"product_id":"2"}`).(*ProductResult)
	if !res.OK || res.Product.TipoPrenda != "Pantalon" {
		t.Fatalf("unexpected result: %+v", res)
	}

	rej := call(t, tools, "get_product", `{"product_id":77}`).(*Rejection)
	if rej.OK || rej.Error != CodeProductNotFound {
		t.Fatalf("unexpected rejection: %+v", rej)
	}

	for _, args := range []string{`{}`, `{"product_id":"abc"}`, `{"product_id":"Infinity"}`, `{"product_id":true}`} {
		_, err := tools.Call(context.Background(), "get_product", json.RawMessage(args))
		if !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("%s: expected ErrInvalidArguments, got %v", args, err)
		}
	}
}

func TestCreateCartIsIdempotent(t *testing.T) {
	tools, _ := newTestTools(t)

	first := call(t, tools, "create_cart", `{"conversation_id":"c-1"}`).(*CreateCartResult)
	second := call(t, tools, "create_cart", `{"conversation_id":"c-1"}`).(*CreateCartResult)
	if !first.Created || second.Created {
		t.Fatalf("created flags: %v, %v", first.Created, second.Created)
	}
	if first.CartID != second.CartID {
		t.Fatalf("cart ids differ: %d vs %d", first.CartID, second.CartID)
	}

	_, err := tools.Call(context.Background(), "create_cart", json.RawMessage(`{"conversation_id":"   "}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
}

func TestAddItemRepricesWholeLine(t *testing.T) {
	tools, _ := newTestTools(t)
	cartID := cartFor(t, tools, "tiers")

	args := `{"cart_id":` + jsonInt(cartID) + `,"product_id":1,"qty":"60"}`
	first := call(t, tools, "add_item", args).(*CartResult)
	if want, got := commerce.Tier50, first.AppliedPriceTier; want != got {
		t.Fatalf("tier: want %q, got %q", want, got)
	}

	second := call(t, tools, "add_item", args).(*CartResult)
	if want, got := commerce.Tier100, second.AppliedPriceTier; want != got {
		t.Fatalf("tier: want %q, got %q", want, got)
	}
	line := second.Cart.Items[0]
	if line.Qty != 120 || line.UnitPriceCents != 900 || line.LineTotalCents != 108000 {
		t.Fatalf("unexpected line: %+v", line)
	}
	if second.Cart.TotalCents != 108000 {
		t.Fatalf("unexpected total: %d", second.Cart.TotalCents)
	}
}

func TestAddItemInsufficientStockDoesNotMutate(t *testing.T) {
	tools, store := newTestTools(t)
	cartID := cartFor(t, tools, "stock")

	call(t, tools, "add_item", `{"cart_id":`+jsonInt(cartID)+`,"product_id":2,"qty":100}`)

	rej := call(t, tools, "add_item", `{"cart_id":`+jsonInt(cartID)+`,"product_id":2,"qty":60}`).(*Rejection)
	if rej.Error != CodeInsufficientStock || *rej.Available != 150 || *rej.Requested != 160 {
		t.Fatalf("unexpected rejection: %+v", rej)
	}

	sum, err := store.SummarizeCart(context.Background(), cartID)
	if err != nil {
		t.Fatal(err)
	}
	if want, got := 100, sum.Items[0].Qty; want != got {
		t.Fatalf("qty mutated: want %d, got %d", want, got)
	}

	b, _ := json.Marshal(rej)
	if want, got := `{"ok":false,"error":"INSUFFICIENT_STOCK","available":150,"requested":160}`, string(b); want != got {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestAddItemRejections(t *testing.T) {
	tools, _ := newTestTools(t)
	cartID := jsonInt(cartFor(t, tools, "rej"))

	cases := map[string]Code{
		`{"cart_id":` + cartID + `,"product_id":1,"qty":0}`:  CodeInvalidQty,
		`{"cart_id":` + cartID + `,"product_id":1,"qty":-4}`: CodeInvalidQty,
		`{"cart_id":999,"product_id":1,"qty":1}`:             CodeCartNotFound,
		`{"cart_id":` + cartID + `,"product_id":42,"qty":1}`: CodeProductNotFound,
		`{"cart_id":` + cartID + `,"product_id":3,"qty":1}`:  CodeProductNotAvailable,
	}
	for args, code := range cases {
		rej, ok := call(t, tools, "add_item", args).(*Rejection)
		if !ok || rej.Error != code {
			t.Fatalf("%s: want %s, got %+v", args, code, rej)
		}
	}

	_, err := tools.Call(context.Background(), "add_item", json.RawMessage(`{"cart_id":`+cartID+`,"product_id":1}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
}

func TestUpdateCartSetQtyZeroRemoves(t *testing.T) {
	tools, _ := newTestTools(t)
	a := cartFor(t, tools, "a")
	b := cartFor(t, tools, "b")
	for _, id := range []int64{a, b} {
		call(t, tools, "add_item", `{"cart_id":`+jsonInt(id)+`,"product_id":1,"qty":5}`)
		call(t, tools, "add_item", `{"cart_id":`+jsonInt(id)+`,"product_id":2,"qty":1}`)
	}

	viaSet := call(t, tools, "update_cart", `{"cart_id":`+jsonInt(a)+`,"operation":{"op":"set_qty","product_id":1,"qty":0}}`).(*CartResult)
	viaRemove := call(t, tools, "update_cart", `{"cart_id":`+jsonInt(b)+`,"operation":{"op":"remove","product_id":1}}`).(*CartResult)

	if viaSet.AppliedPriceTier != "" || viaRemove.AppliedPriceTier != "" {
		t.Fatalf("remove should not report a tier")
	}
	if len(viaSet.Cart.Items) != 1 || len(viaRemove.Cart.Items) != 1 {
		t.Fatalf("expected one remaining line, got %d and %d", len(viaSet.Cart.Items), len(viaRemove.Cart.Items))
	}
	if viaSet.Cart.Items[0] != viaRemove.Cart.Items[0] || viaSet.Cart.TotalCents != viaRemove.Cart.TotalCents {
		t.Fatalf("set_qty<=0 and remove diverge: %+v vs %+v", viaSet.Cart, viaRemove.Cart)
	}
}

func TestUpdateCartSetQty(t *testing.T) {
	tools, _ := newTestTools(t)
	cartID := jsonInt(cartFor(t, tools, "set"))

	res := call(t, tools, "update_cart", `{"cart_id":`+cartID+`,"operation":{"op":"set_qty","product_id":"1","qty":"250"}}`).(*CartResult)
	if want, got := commerce.Tier200, res.AppliedPriceTier; want != got {
		t.Fatalf("tier: want %q, got %q", want, got)
	}
	if res.Cart.Items[0].UnitPriceCents != 800 {
		t.Fatalf("unexpected price: %+v", res.Cart.Items[0])
	}

	rej := call(t, tools, "update_cart", `{"cart_id":`+cartID+`,"operation":{"op":"set_qty","product_id":1,"qty":501}}`).(*Rejection)
	if rej.Error != CodeInsufficientStock || *rej.Requested != 501 {
		t.Fatalf("unexpected rejection: %+v", rej)
	}

	for _, args := range []string{
		`{"cart_id":` + cartID + `}`,
		`{"cart_id":` + cartID + `,"operation":{"op":"clear","product_id":1}}`,
		`{"cart_id":` + cartID + `,"operation":{"op":"set_qty","product_id":1}}`,
		`{"cart_id":` + cartID + `,"operation":{"op":"remove"}}`,
	} {
		_, err := tools.Call(context.Background(), "update_cart", json.RawMessage(args))
		if !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("%s: expected ErrInvalidArguments, got %v", args, err)
		}
	}
}

func TestGetCart(t *testing.T) {
	tools, _ := newTestTools(t)
	cartID := cartFor(t, tools, "lookup")

	byID := call(t, tools, "get_cart", `{"cart_id":`+jsonInt(cartID)+`}`).(*CartResult)
	byConv := call(t, tools, "get_cart", `{"conversation_id":"lookup"}`).(*CartResult)
	if byID.Cart.CartID != cartID || byConv.Cart.CartID != cartID {
		t.Fatalf("unexpected carts: %d, %d", byID.Cart.CartID, byConv.Cart.CartID)
	}
	if byID.Cart.Items == nil {
		t.Fatalf("empty carts must serialize items as []")
	}

	rej := call(t, tools, "get_cart", `{"cart_id":12345}`).(*Rejection)
	if rej.Error != CodeCartNotFound {
		t.Fatalf("unexpected rejection: %+v", rej)
	}

	for _, args := range []string{`{}`, `{"conversation_id":"unknown"}`} {
		_, err := tools.Call(context.Background(), "get_cart", json.RawMessage(args))
		if !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("%s: expected ErrInvalidArguments, got %v", args, err)
		}
	}
}

type failingService struct {
	commerce.Service
	calls int
}

func (f *failingService) FindProduct(context.Context, int64) (*commerce.Product, error) {
	f.calls++
	return nil, errors.New("connection reset")
}

func TestCollaboratorFailureSurfacesOnce(t *testing.T) {
	svc := &failingService{}
	tools := NewTools(svc)

	_, err := tools.Call(context.Background(), "get_product", json.RawMessage(`{"product_id":1}`))
	if err == nil || errors.Is(err, commerce.ErrNotFound) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if want, got := 1, svc.calls; want != got {
		t.Fatalf("calls: want %d, got %d", want, got)
	}

	_, err = tools.Call(context.Background(), "get_product", json.RawMessage(`{}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
	if want, got := 1, svc.calls; want != got {
		t.Fatalf("collaborator called for invalid input: %d calls", got)
	}
}

func TestArgumentsMustBeObject(t *testing.T) {
	tools, _ := newTestTools(t)
	_, err := tools.Call(context.Background(), "list_products", json.RawMessage(`[1,2]`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
	if _, err := tools.Call(context.Background(), "list_products", nil); err != nil {
		t.Fatalf("absent arguments should be treated as empty: %v", err)
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
