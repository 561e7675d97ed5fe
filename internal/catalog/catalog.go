// Package catalog searches card catalogs for entries matching a recognition
// guess. The primary backend is the Cardbase REST API; when it is
// unreachable the chain falls back to the shop's own Odoo product catalog
// over XML-RPC, which speaks a differently shaped query contract.
package catalog

import (
	"context"
	"log"
)

// Query is the combined (name, number, set) filter built from a guess
type Query struct {
	Name    string
	Number  string
	SetCode string
}

// Entry is one catalog row with its market price fields
type Entry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Number      string   `json:"number"`
	SetCode     string   `json:"set_code"`
	SetName     string   `json:"set_name,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	MarketPrice float64  `json:"market_price"`
	Currency    string   `json:"currency"`
	GradedLabel string   `json:"graded_label,omitempty"`
	GradedPrice *float64 `json:"graded_price,omitempty"`
	Raw         []byte   `json:"-"`
}

// Searcher is one catalog backend
type Searcher interface {
	// Code returns the unique code for this backend (e.g. "cardbase", "odoo")
	Code() string

	// Search returns catalog entries matching the query, unranked.
	Search(ctx context.Context, q Query) ([]Entry, error)
}

// Chain tries searchers in order and returns the first non-erroring result.
// An empty result set from a healthy backend is a legal answer and stops
// the chain; only transport/provider errors fall through.
type Chain struct {
	searchers []Searcher
}

// NewChain builds a search chain in priority order.
func NewChain(searchers ...Searcher) *Chain {
	return &Chain{searchers: searchers}
}

// Search walks the chain. degraded is true when a non-first backend answered
// or when every backend failed (empty result, no error).
func (c *Chain) Search(ctx context.Context, q Query) (entries []Entry, degraded bool) {
	for i, s := range c.searchers {
		found, err := s.Search(ctx, q)
		if err != nil {
			log.Printf("⚠️ Catalog: backend %s failed: %v", s.Code(), err)
			continue
		}
		return found, i > 0
	}
	return nil, true
}
