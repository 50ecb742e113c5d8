package llm

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries each Client in order, falling through to the next on error.
// Grounded on the provider-fallback pattern implied by smilemakc-mbflow's
// multi-provider LLM package (OpenAI/Anthropic/Gemini all behind one
// interface) generalized into an explicit ordered fallback list.
type Chain struct {
	clients []Client
}

// NewChain builds a Chain trying clients in the given order.
func NewChain(clients ...Client) *Chain {
	return &Chain{clients: clients}
}

// Complete tries each client in order, returning the first success. If
// every client fails, it returns a combined error.
func (c *Chain) Complete(ctx context.Context, req Request) (Response, error) {
	if len(c.clients) == 0 {
		return Response{}, errors.New("llm: chain has no configured clients")
	}
	var errs []error
	for i, client := range c.clients {
		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("provider %d: %w", i, err))
	}
	return Response{}, fmt.Errorf("llm: all providers failed: %w", errors.Join(errs...))
}
