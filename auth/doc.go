// Package auth provides the optional authentication applied to the SSE
// gateway's HTTP endpoints.
//
// An Authenticator inspects the inbound request and returns a UserInfo or an
// error wrapping ErrUnauthorized. Three implementations are selected by Mode:
//
//	none           every request is accepted (the default)
//	shared_secret  a header (X-MCP-Secret by default) must carry the secret
//	jwt            an HS256 bearer token signed with the secret
//
// The transport maps ErrUnauthorized to a 401 response and, for
// authenticators that implement Challenger, a WWW-Authenticate header.
package auth
