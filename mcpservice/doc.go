// Package mcpservice is the tool invocation layer: it publishes the commerce
// tool catalog and runs tool calls against a commerce.Service.
//
// Arguments arrive as loosely typed JSON. Integers may be sent as numbers or
// numeric strings; fractional values are truncated and anything unparsable or
// non-finite counts as absent. A missing required argument fails the call
// with ErrInvalidArguments before the service is touched.
//
// Business rejections are successful results shaped as
//
//	{"ok":false,"error":"INSUFFICIENT_STOCK","available":10,"requested":12}
//
// while service failures are returned as errors for the protocol layer to
// report.
//
// Example:
//
//	tools := mcpservice.NewTools(store)
//	out, err := tools.Call(ctx, "add_item", json.RawMessage(`{"cart_id":1,"product_id":2,"qty":"60"}`))
package mcpservice
