// Package scanner resolves one card image into a persisted ScanRecord with
// ranked, priced candidates.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kartoteka-app/kartotekago/internal/catalog"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/pricing"
	"github.com/kartoteka-app/kartotekago/internal/recognize"
	"github.com/kartoteka-app/kartotekago/internal/store"
	"gorm.io/datatypes"
)

// Resolver runs the recognition chain, the catalog chain and the pricing
// engine over one image and persists the outcome before returning.
type Resolver struct {
	store     store.Store
	recognize *recognize.Chain
	search    *catalog.Chain
	pricing   pricing.Engine
}

// NewResolver wires the resolution pipeline.
func NewResolver(st store.Store, rec *recognize.Chain, search *catalog.Chain, eng pricing.Engine) *Resolver {
	return &Resolver{store: st, recognize: rec, search: search, pricing: eng}
}

// Resolve maps image bytes to a ScanRecord with ranked candidates.
// Provider failures degrade to weaker candidates or an empty list; the
// only hard errors are an unusable payload, an unknown session or a
// closed session. The record is persisted even with zero candidates so
// callers always have something to record a decision against.
func (r *Resolver) Resolve(ctx context.Context, image []byte, filename, sessionID string) (*models.ScanRecord, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image payload: %w", models.ErrInvalidInput)
	}

	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Closed() {
		return nil, models.ErrSessionClosed
	}

	guess, guessDegraded := r.recognize.Recognize(ctx, image, filename)

	var entries []catalog.Entry
	searchDegraded := false
	var query catalog.Query
	if guess.Usable() {
		query = catalog.Query{Name: guess.Name, Number: guess.Number, SetCode: guess.SetCode}
		entries, searchDegraded = r.search.Search(ctx, query)
	}

	scan := &models.ScanRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ImageRef:  filename,
		Status:    models.ScanPending,
		Degraded:  guessDegraded || searchDegraded,
		CreatedAt: time.Now().UTC(),
	}

	for rank, entry := range catalog.Rank(query, entries) {
		var graded *pricing.GradedRef
		if entry.GradedPrice != nil {
			graded = &pricing.GradedRef{
				Label:    entry.GradedLabel,
				Amount:   *entry.GradedPrice,
				Currency: entry.Currency,
			}
		}
		scan.Candidates = append(scan.Candidates, models.Candidate{
			ID:             uuid.NewString(),
			ScanRecordID:   scan.ID,
			Name:           entry.Name,
			Number:         entry.Number,
			SetCode:        entry.SetCode,
			SetName:        entry.SetName,
			CatalogID:      entry.ID,
			ImageURL:       entry.ImageURL,
			ConfidenceRank: rank,
			Pricing:        r.pricing.Quote(entry.MarketPrice, entry.Currency, graded),
			RawData:        datatypes.JSON(entry.Raw),
		})
	}

	if err := r.store.CreateScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("failed to persist scan: %w", err)
	}
	return scan, nil
}
