package llm

import (
	"context"
	"sync/atomic"
)

// MockClient is a deterministic test double: it cycles through a fixed
// list of canned responses, or always returns Malformed when configured
// to, so tests can exercise TemplateParameterGenerator's retry-then-
// fallthrough behavior (spec.md scenario 3) without a network call.
type MockClient struct {
	responses []Response
	calls     int64
	malformed bool
}

// NewMockClient returns a MockClient that serves responses round-robin.
func NewMockClient(responses ...Response) *MockClient {
	return &MockClient{responses: responses}
}

// NewAlwaysMalformedClient returns a MockClient whose every response fails
// schema validation by construction — non-JSON text.
func NewAlwaysMalformedClient() *MockClient {
	return &MockClient{malformed: true}
}

// Complete returns the next canned response.
func (m *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	n := atomic.AddInt64(&m.calls, 1)
	if m.malformed {
		return Response{Content: "not json {{{ malformed", FinishReason: "stop"}, nil
	}
	if len(m.responses) == 0 {
		return Response{Content: "{}", FinishReason: "stop"}, nil
	}
	return m.responses[(n-1)%int64(len(m.responses))], nil
}

// CallCount returns how many times Complete was invoked.
func (m *MockClient) CallCount() int {
	return int(atomic.LoadInt64(&m.calls))
}
