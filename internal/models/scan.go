package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScanStatus is the lifecycle state of a ScanRecord
type ScanStatus string

const (
	ScanPending   ScanStatus = "pending"
	ScanConfirmed ScanStatus = "confirmed"
	ScanPublished ScanStatus = "published"
	ScanSkipped   ScanStatus = "skipped"
)

// ScanRecord is one submitted card image and its resolution outcome.
// Candidates are replaced wholesale on re-resolution; only the Chosen
// flag is mutated in place.
type ScanRecord struct {
	ID                   string     `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID            string     `gorm:"index;type:uuid" json:"session_id"`
	ImageRef             string     `json:"image_ref"`
	Status               ScanStatus `gorm:"index;default:pending" json:"status"`
	Degraded             bool       `json:"degraded"` // resolved via fallback provider
	MarketplaceProductID *int64     `json:"marketplace_product_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`

	Candidates []Candidate      `gorm:"foreignKey:ScanRecordID" json:"candidates"`
	Attempts   []PublishAttempt `gorm:"foreignKey:ScanRecordID" json:"attempts,omitempty"`
}

func (ScanRecord) TableName() string { return "scan_records" }

// ChosenCandidate returns the currently selected candidate, if any.
func (s *ScanRecord) ChosenCandidate() *Candidate {
	for i := range s.Candidates {
		if s.Candidates[i].Chosen {
			return &s.Candidates[i]
		}
	}
	return nil
}

// Candidate is one ranked catalog guess for a scan. Rank 0 is the best match.
type Candidate struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ScanRecordID   string `gorm:"index;type:uuid" json:"scan_record_id"`
	Name           string `json:"name"`
	Number         string `json:"number"`
	SetCode        string `json:"set_code"`
	SetName        string `json:"set_name,omitempty"`
	CatalogID      string `json:"catalog_id,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	ConfidenceRank int    `json:"confidence_rank"`
	Chosen         bool   `json:"chosen"`

	Pricing PricingQuote `gorm:"embedded;embeddedPrefix:price_" json:"pricing"`

	RawData datatypes.JSON `gorm:"type:jsonb" json:"raw_data,omitempty"`
}

func (Candidate) TableName() string { return "scan_candidates" }

// CatalogKey is the name+number+set identity of the catalog entry.
func (c *Candidate) CatalogKey() string {
	return c.Name + " " + c.Number + " " + c.SetCode
}

// PricingQuote is the converted local-currency quote attached to a candidate.
// Immutable once computed; rebuilt only when the scan is re-resolved.
type PricingQuote struct {
	SourceCurrency   string   `json:"source_currency"`
	SourceAmount     float64  `json:"source_amount"`
	FxRate           float64  `json:"fx_rate"`
	Multiplier       float64  `json:"multiplier"`
	LocalCurrency    string   `json:"local_currency"`
	FinalLocalAmount float64  `json:"final_local_amount"`
	GradedLabel      string   `json:"graded_label,omitempty"`
	GradedAmount     *float64 `json:"graded_amount,omitempty"`
	GradedCurrency   string   `json:"graded_currency,omitempty"`
}

// PublishAttempt records one publish call for a scan, dry-run included.
// At most one attempt per scan has Succeeded=true with DryRun=false.
type PublishAttempt struct {
	ID                   string         `gorm:"primaryKey;type:uuid" json:"id"`
	ScanRecordID         string         `gorm:"index;type:uuid" json:"scan_record_id"`
	DryRun               bool           `json:"dry_run"`
	Succeeded            bool           `json:"succeeded"`
	MarketplaceProductID *int64         `json:"marketplace_product_id,omitempty"`
	PayloadSnapshot      datatypes.JSON `gorm:"type:jsonb" json:"payload_snapshot,omitempty"`
	Error                string         `json:"error,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

func (PublishAttempt) TableName() string { return "publish_attempts" }
