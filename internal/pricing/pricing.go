// Package pricing converts foreign-currency market prices into the local
// sale quote. The FX rate and multiplier are configuration inputs; rate
// sourcing is not this package's concern.
package pricing

import (
	"math"

	"github.com/kartoteka-app/kartotekago/internal/models"
)

// GradedRef is an informational third-party grading benchmark price.
// It is recorded verbatim, never converted.
type GradedRef struct {
	Label    string
	Amount   float64
	Currency string
}

// Engine computes deterministic quotes from configured constants
type Engine struct {
	FxRate        float64
	Multiplier    float64
	LocalCurrency string
}

// Quote converts marketPrice into the final local amount:
// final = round(price * fx * multiplier, 2). Identical inputs always
// produce identical output.
func (e Engine) Quote(marketPrice float64, currency string, graded *GradedRef) models.PricingQuote {
	quote := models.PricingQuote{
		SourceCurrency:   currency,
		SourceAmount:     marketPrice,
		FxRate:           e.FxRate,
		Multiplier:       e.Multiplier,
		LocalCurrency:    e.LocalCurrency,
		FinalLocalAmount: round2(marketPrice * e.FxRate * e.Multiplier),
	}
	if graded != nil {
		amount := graded.Amount
		quote.GradedLabel = graded.Label
		quote.GradedAmount = &amount
		quote.GradedCurrency = graded.Currency
	}
	return quote
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
