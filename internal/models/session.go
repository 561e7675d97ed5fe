package models

import (
	"time"
)

// ScanSession groups an operator's scans under one activity.
// Immutable after creation except ClosedAt.
type ScanSession struct {
	ID                    string     `gorm:"primaryKey;type:uuid" json:"id"`
	StartingWarehouseCode string     `gorm:"index" json:"starting_warehouse_code,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	ClosedAt              *time.Time `json:"closed_at,omitempty"`

	Scans []ScanRecord `gorm:"foreignKey:SessionID" json:"scans,omitempty"`
}

func (ScanSession) TableName() string { return "scan_sessions" }

// Closed reports whether the session no longer accepts writes.
func (s *ScanSession) Closed() bool { return s.ClosedAt != nil }

// SessionSummary holds per-status scan counts for one session.
type SessionSummary struct {
	ScanCount      int64 `json:"scan_count"`
	ConfirmedCount int64 `json:"confirmed_count"`
	PublishedCount int64 `json:"published_count"`
	SkippedCount   int64 `json:"skipped_count"`
}
