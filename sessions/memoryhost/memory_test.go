package memoryhost

import (
	"testing"

	"github.com/ggoodman/mcp-sse-commerce/sessions"
	"github.com/ggoodman/mcp-sse-commerce/sessions/sessionhosttest"
)

func TestMemorySessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessions.SessionHost {
		return New()
	})
}
