// Package recognize maps a card photo to a structured guess of the card's
// name, collector number and set. Providers are tried in registration order;
// a later provider is only consulted when the earlier ones fail or return
// nothing usable.
package recognize

import (
	"context"
	"log"
)

// Guess is a provider's structured reading of a card image
type Guess struct {
	Name       string  `json:"name"`
	Number     string  `json:"number"`
	SetCode    string  `json:"set_code"`
	SetName    string  `json:"set_name,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // provider code that produced the guess
}

// Usable reports whether the guess carries enough signal to search on.
func (g *Guess) Usable() bool {
	return g != nil && g.Name != ""
}

// Provider is one recognition backend
type Provider interface {
	// Code returns the unique code for this provider (e.g. "gemini", "filename")
	Code() string

	// Recognize reads one image and returns a guess, or an error when the
	// provider cannot produce one.
	Recognize(ctx context.Context, image []byte, filename string) (*Guess, error)
}

// Chain tries providers in order and returns the first usable guess.
// degraded is true when a non-first provider produced the guess, or when
// every provider failed (nil guess, no error — recognition failures must
// never fail a scan outright).
type Chain struct {
	providers []Provider
}

// NewChain builds a chain in priority order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Recognize walks the chain.
func (c *Chain) Recognize(ctx context.Context, image []byte, filename string) (guess *Guess, degraded bool) {
	for i, p := range c.providers {
		g, err := p.Recognize(ctx, image, filename)
		if err != nil {
			log.Printf("⚠️ Recognition: provider %s failed: %v", p.Code(), err)
			continue
		}
		if !g.Usable() {
			log.Printf("⚠️ Recognition: provider %s returned no usable signal", p.Code())
			continue
		}
		g.Source = p.Code()
		return g, i > 0
	}
	return nil, true
}
