// Package publish turns a confirmed scan into a marketplace product.
package publish

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kartoteka-app/kartotekago/internal/config"
	"github.com/kartoteka-app/kartotekago/internal/marketplace/shoper"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/store"
	"gorm.io/datatypes"
)

// Marketplace is the product-creation capability the pipeline publishes to
type Marketplace interface {
	CreateProduct(ctx context.Context, payload shoper.ProductPayload) (int64, error)
}

// Images carries the photo set attached to the product
type Images struct {
	Primary    []byte
	PrimaryURL string
	Additional [][]byte
}

// Result is the outcome of one publish attempt
type Result struct {
	ScanRecordID         string                `json:"scan_record_id"`
	MarketplaceProductID *int64                `json:"marketplace_product_id,omitempty"`
	DryRun               bool                  `json:"dry_run"`
	Payload              shoper.ProductPayload `json:"payload"`
	Succeeded            bool                  `json:"succeeded"`
	Error                error                 `json:"-"`
}

// Pipeline validates, builds and submits marketplace products with
// idempotency guarantees: a scan flips to published exactly once, and a
// failed attempt leaves the record exactly as it was.
type Pipeline struct {
	store  store.Store
	market Marketplace
	cfg    config.PublishConfig
}

// NewPipeline wires the publish pipeline.
func NewPipeline(st store.Store, market Marketplace, cfg config.PublishConfig) *Pipeline {
	return &Pipeline{store: st, market: market, cfg: cfg}
}

// ProductCode derives the deterministic marketplace code for a candidate:
// prefix, set code and collector number. Re-deriving for the same candidate
// always yields the same string, which is the duplicate-detection key.
func (p *Pipeline) ProductCode(c *models.Candidate) string {
	number := strings.ReplaceAll(c.Number, "/", "-")
	return fmt.Sprintf("%s-%s-%s", p.cfg.CodePrefix, strings.ToUpper(c.SetCode), number)
}

// categoryFor applies the configured name→category overrides
func (p *Pipeline) categoryFor(name string) int64 {
	if id, ok := p.cfg.CategoryOverrides[strings.ToLower(name)]; ok {
		return id
	}
	return p.cfg.DefaultCategoryID
}

// BuildPayload assembles the would-be product for scan+candidate without
// touching the marketplace. Used by Publish and by the preview endpoint.
func (p *Pipeline) BuildPayload(candidate *models.Candidate, warehouseCode string, images Images) shoper.ProductPayload {
	payload := shoper.ProductPayload{
		CategoryID: p.categoryFor(candidate.Name),
		Code:       p.ProductCode(candidate),
		Name:       fmt.Sprintf("%s %s (%s)", candidate.Name, candidate.Number, strings.ToUpper(candidate.SetCode)),
		Price:      candidate.Pricing.FinalLocalAmount,
		Currency:   candidate.Pricing.LocalCurrency,
		StockQty:   1,
		Warehouse:  warehouseCode,
	}
	if candidate.Pricing.GradedAmount != nil {
		payload.Description = fmt.Sprintf("%s reference: %.2f %s",
			candidate.Pricing.GradedLabel, *candidate.Pricing.GradedAmount, candidate.Pricing.GradedCurrency)
	}

	switch {
	case len(images.Primary) > 0:
		payload.Images = append(payload.Images, shoper.ProductImage{
			Base64: base64.StdEncoding.EncodeToString(images.Primary),
			Name:   payload.Code,
			Main:   true,
		})
	case images.PrimaryURL != "":
		payload.Images = append(payload.Images, shoper.ProductImage{URL: images.PrimaryURL, Main: true})
	}
	for i, img := range images.Additional {
		payload.Images = append(payload.Images, shoper.ProductImage{
			Base64: base64.StdEncoding.EncodeToString(img),
			Name:   fmt.Sprintf("%s-%d", payload.Code, i+1),
		})
	}
	return payload
}

// Publish submits one scan. Preconditions: the scan exists, is pending or
// confirmed, and owns the candidate. With dryRun the payload is validated
// and returned without any marketplace call or status change. Without it,
// success flips the scan to published via compare-and-set; any failure
// leaves the record untouched and surfaces the provider error verbatim.
func (p *Pipeline) Publish(ctx context.Context, scanID, candidateID string, images Images, dryRun bool) (*Result, error) {
	scan, err := p.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.Status == models.ScanPublished || scan.Status == models.ScanSkipped {
		return nil, fmt.Errorf("scan is %s: %w", scan.Status, models.ErrInvalidState)
	}

	var candidate *models.Candidate
	for i := range scan.Candidates {
		if scan.Candidates[i].ID == candidateID {
			candidate = &scan.Candidates[i]
			break
		}
	}
	if candidate == nil {
		return nil, fmt.Errorf("candidate %s does not belong to scan: %w", candidateID, models.ErrNotFound)
	}

	session, err := p.store.GetSession(ctx, scan.SessionID)
	if err != nil {
		return nil, err
	}

	payload := p.BuildPayload(candidate, session.StartingWarehouseCode, images)
	result := &Result{ScanRecordID: scanID, DryRun: dryRun, Payload: payload}

	if dryRun {
		result.Succeeded = true
		p.recordAttempt(ctx, result)
		return result, nil
	}

	productID, err := p.market.CreateProduct(ctx, payload)
	if err != nil {
		result.Error = err
		p.recordAttempt(ctx, result)
		var mErr *models.MarketplaceError
		if errors.As(err, &mErr) {
			return result, mErr
		}
		return result, fmt.Errorf("marketplace call failed: %w", err)
	}

	// CAS on status: if a concurrent publish won the race, report
	// InvalidState instead of leaving a second live product unrecorded.
	if err := p.store.MarkPublished(ctx, scanID, productID); err != nil {
		result.Error = err
		p.recordAttempt(ctx, result)
		return result, err
	}

	result.Succeeded = true
	result.MarketplaceProductID = &productID
	p.recordAttempt(ctx, result)
	return result, nil
}

// recordAttempt stores the attempt for audit; attempt history is advisory
// and must never mask the publish outcome, so errors are only logged.
func (p *Pipeline) recordAttempt(ctx context.Context, result *Result) {
	snapshot, _ := json.Marshal(result.Payload)
	attempt := &models.PublishAttempt{
		ID:                   uuid.NewString(),
		ScanRecordID:         result.ScanRecordID,
		DryRun:               result.DryRun,
		Succeeded:            result.Succeeded,
		MarketplaceProductID: result.MarketplaceProductID,
		PayloadSnapshot:      datatypes.JSON(snapshot),
		CreatedAt:            time.Now().UTC(),
	}
	if result.Error != nil {
		attempt.Error = result.Error.Error()
	}
	if err := p.store.RecordAttempt(ctx, attempt); err != nil {
		log.Printf("⚠️ Publish: failed to record attempt for scan %s: %v", result.ScanRecordID, err)
	}
}
