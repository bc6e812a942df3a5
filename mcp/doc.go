// Package mcp contains the Model Context Protocol data types used by the
// gateway. It mirrors the wire representation of the subset of MCP the
// gateway speaks (initialize, tools/list, tools/call and ping) while keeping
// the surface Go-friendly: exported structs with json tags and string
// constants for method names.
//
// The package is free of transport logic. The sse package handles framing and
// the engine handles JSON-RPC dispatch; both marshal these types.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Tool Schemas
//
// ToolInputSchema and SchemaProperty are a deliberately small JSON Schema
// dialect: object properties, nested objects, enums, numeric bounds and
// defaults.
package mcp
