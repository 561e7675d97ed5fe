package store

import (
	"context"
	"errors"
	"time"

	"github.com/kartoteka-app/kartotekago/internal/database"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"gorm.io/gorm"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	db *database.DB
}

// NewGormStore wraps an open database connection.
func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateSession(ctx context.Context, session *models.ScanSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *GormStore) GetSession(ctx context.Context, id string) (*models.ScanSession, error) {
	var session models.ScanSession
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormStore) ListSessions(ctx context.Context, limit int) ([]models.ScanSession, error) {
	var sessions []models.ScanSession
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return sessions, q.Find(&sessions).Error
}

func (s *GormStore) CloseSession(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.ScanSession{}).
		Where("id = ? AND closed_at IS NULL", id).
		Update("closed_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either already closed (idempotent no-op) or missing
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.ScanSession{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrNotFound
		}
	}
	return nil
}

func (s *GormStore) SessionSummary(ctx context.Context, id string) (*models.SessionSummary, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}

	type statusCount struct {
		Status models.ScanStatus
		Count  int64
	}
	var counts []statusCount
	err := s.db.WithContext(ctx).Model(&models.ScanRecord{}).
		Select("status, count(*) as count").
		Where("session_id = ?", id).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	summary := &models.SessionSummary{}
	for _, c := range counts {
		summary.ScanCount += c.Count
		switch c.Status {
		case models.ScanConfirmed:
			summary.ConfirmedCount += c.Count
		case models.ScanPublished:
			summary.PublishedCount += c.Count
		case models.ScanSkipped:
			summary.SkippedCount += c.Count
		}
	}
	return summary, nil
}

func (s *GormStore) CreateScan(ctx context.Context, scan *models.ScanRecord) error {
	// Candidates ride along through the association
	return s.db.WithContext(ctx).Create(scan).Error
}

func (s *GormStore) GetScan(ctx context.Context, id string) (*models.ScanRecord, error) {
	var scan models.ScanRecord
	err := s.db.WithContext(ctx).
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order("confidence_rank ASC")
		}).
		First(&scan, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (s *GormStore) ListScans(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	var scans []models.ScanRecord
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return scans, q.Find(&scans).Error
}

func (s *GormStore) ListSessionScans(ctx context.Context, sessionID string) ([]models.ScanRecord, error) {
	var scans []models.ScanRecord
	err := s.db.WithContext(ctx).
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order("confidence_rank ASC")
		}).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&scans).Error
	return scans, err
}

func (s *GormStore) ChooseCandidate(ctx context.Context, scanID, candidateID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scan models.ScanRecord
		err := tx.First(&scan, "id = ?", scanID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		if scan.Status == models.ScanPublished || scan.Status == models.ScanSkipped {
			return models.ErrInvalidState
		}

		var candidate models.Candidate
		err = tx.First(&candidate, "id = ? AND scan_record_id = ?", candidateID, scanID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}

		// Clear-then-set keeps the selection mutually exclusive
		if err := tx.Model(&models.Candidate{}).
			Where("scan_record_id = ?", scanID).
			Update("chosen", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Candidate{}).
			Where("id = ?", candidateID).
			Update("chosen", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.ScanRecord{}).
			Where("id = ?", scanID).
			Update("status", models.ScanConfirmed).Error
	})
}

func (s *GormStore) MarkSkipped(ctx context.Context, scanID string) error {
	res := s.db.WithContext(ctx).Model(&models.ScanRecord{}).
		Where("id = ? AND status IN ?", scanID, []models.ScanStatus{models.ScanPending, models.ScanConfirmed}).
		Update("status", models.ScanSkipped)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.scanTransitionError(ctx, scanID)
	}
	return nil
}

func (s *GormStore) MarkPublished(ctx context.Context, scanID string, productID int64) error {
	res := s.db.WithContext(ctx).Model(&models.ScanRecord{}).
		Where("id = ? AND status IN ?", scanID, []models.ScanStatus{models.ScanPending, models.ScanConfirmed}).
		Updates(map[string]interface{}{
			"status":                 models.ScanPublished,
			"marketplace_product_id": productID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.scanTransitionError(ctx, scanID)
	}
	return nil
}

// scanTransitionError distinguishes a missing scan from one in a terminal status
func (s *GormStore) scanTransitionError(ctx context.Context, scanID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ScanRecord{}).Where("id = ?", scanID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return models.ErrNotFound
	}
	return models.ErrInvalidState
}

func (s *GormStore) RecordAttempt(ctx context.Context, attempt *models.PublishAttempt) error {
	return s.db.WithContext(ctx).Create(attempt).Error
}

func (s *GormStore) ListAttempts(ctx context.Context, scanID string) ([]models.PublishAttempt, error) {
	var attempts []models.PublishAttempt
	err := s.db.WithContext(ctx).
		Where("scan_record_id = ?", scanID).
		Order("created_at ASC").
		Find(&attempts).Error
	return attempts, err
}

func (s *GormStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator
	err := s.db.WithContext(ctx).First(&op, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *GormStore) CreateOperator(ctx context.Context, op *models.Operator) error {
	return s.db.WithContext(ctx).Create(op).Error
}

func (s *GormStore) TouchOperatorLogin(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Operator{}).
		Where("id = ?", id).
		Update("last_login", at).Error
}
