// Package store persists scan sessions, scan records and publish attempts.
// Two implementations exist: GormStore (PostgreSQL) for the server and
// MemoryStore for tests and DB-less runs.
package store

import (
	"context"
	"time"

	"github.com/kartoteka-app/kartotekago/internal/models"
)

// Store is the persistence contract for the scan/publish pipeline.
type Store interface {
	CreateSession(ctx context.Context, session *models.ScanSession) error
	GetSession(ctx context.Context, id string) (*models.ScanSession, error)
	ListSessions(ctx context.Context, limit int) ([]models.ScanSession, error)
	// CloseSession is idempotent; closing an already-closed session is a no-op.
	CloseSession(ctx context.Context, id string, at time.Time) error
	SessionSummary(ctx context.Context, id string) (*models.SessionSummary, error)

	// CreateScan persists a scan together with its candidate list.
	CreateScan(ctx context.Context, scan *models.ScanRecord) error
	GetScan(ctx context.Context, id string) (*models.ScanRecord, error)
	ListScans(ctx context.Context, limit int) ([]models.ScanRecord, error)
	ListSessionScans(ctx context.Context, sessionID string) ([]models.ScanRecord, error)

	// ChooseCandidate atomically clears the chosen flag on all sibling
	// candidates, sets it on candidateID and moves the scan to confirmed.
	ChooseCandidate(ctx context.Context, scanID, candidateID string) error
	MarkSkipped(ctx context.Context, scanID string) error
	// MarkPublished flips the scan from pending/confirmed to published via
	// compare-and-set. Returns models.ErrInvalidState if the scan is in any
	// other status, so two racing publishes cannot both win.
	MarkPublished(ctx context.Context, scanID string, productID int64) error

	RecordAttempt(ctx context.Context, attempt *models.PublishAttempt) error
	ListAttempts(ctx context.Context, scanID string) ([]models.PublishAttempt, error)

	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	CreateOperator(ctx context.Context, op *models.Operator) error
	TouchOperatorLogin(ctx context.Context, id string, at time.Time) error
}
