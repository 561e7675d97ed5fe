package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kartoteka-app/kartotekago/internal/models"
)

// MemoryStore is an in-memory Store used by tests and by `folderscan`
// dry runs where no database is configured. It honors the same status
// transition rules as GormStore.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.ScanSession
	scans     map[string]*models.ScanRecord
	attempts  map[string][]models.PublishAttempt
	operators map[string]*models.Operator
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*models.ScanSession),
		scans:     make(map[string]*models.ScanRecord),
		attempts:  make(map[string][]models.PublishAttempt),
		operators: make(map[string]*models.Operator),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, session *models.ScanSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*models.ScanSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]models.ScanSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScanSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CloseSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	if session.ClosedAt == nil {
		session.ClosedAt = &at
	}
	return nil
}

func (s *MemoryStore) SessionSummary(_ context.Context, id string) (*models.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return nil, models.ErrNotFound
	}
	summary := &models.SessionSummary{}
	for _, scan := range s.scans {
		if scan.SessionID != id {
			continue
		}
		summary.ScanCount++
		switch scan.Status {
		case models.ScanConfirmed:
			summary.ConfirmedCount++
		case models.ScanPublished:
			summary.PublishedCount++
		case models.ScanSkipped:
			summary.SkippedCount++
		}
	}
	return summary, nil
}

func (s *MemoryStore) CreateScan(_ context.Context, scan *models.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *scan
	cp.Candidates = append([]models.Candidate(nil), scan.Candidates...)
	s.scans[scan.ID] = &cp
	return nil
}

func (s *MemoryStore) GetScan(_ context.Context, id string) (*models.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getScanLocked(id)
}

func (s *MemoryStore) getScanLocked(id string) (*models.ScanRecord, error) {
	scan, ok := s.scans[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *scan
	cp.Candidates = append([]models.Candidate(nil), scan.Candidates...)
	sort.Slice(cp.Candidates, func(i, j int) bool {
		return cp.Candidates[i].ConfidenceRank < cp.Candidates[j].ConfidenceRank
	})
	return &cp, nil
}

func (s *MemoryStore) ListScans(_ context.Context, limit int) ([]models.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScanRecord, 0, len(s.scans))
	for id := range s.scans {
		scan, _ := s.getScanLocked(id)
		out = append(out, *scan)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListSessionScans(_ context.Context, sessionID string) ([]models.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ScanRecord, 0)
	for id, scan := range s.scans {
		if scan.SessionID != sessionID {
			continue
		}
		cp, _ := s.getScanLocked(id)
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ChooseCandidate(_ context.Context, scanID, candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return models.ErrNotFound
	}
	if scan.Status == models.ScanPublished || scan.Status == models.ScanSkipped {
		return models.ErrInvalidState
	}
	found := false
	for i := range scan.Candidates {
		if scan.Candidates[i].ID == candidateID {
			found = true
			break
		}
	}
	if !found {
		return models.ErrNotFound
	}
	for i := range scan.Candidates {
		scan.Candidates[i].Chosen = scan.Candidates[i].ID == candidateID
	}
	scan.Status = models.ScanConfirmed
	return nil
}

func (s *MemoryStore) MarkSkipped(_ context.Context, scanID string) error {
	return s.transition(scanID, models.ScanSkipped, nil)
}

func (s *MemoryStore) MarkPublished(_ context.Context, scanID string, productID int64) error {
	return s.transition(scanID, models.ScanPublished, &productID)
}

func (s *MemoryStore) transition(scanID string, to models.ScanStatus, productID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return models.ErrNotFound
	}
	if scan.Status != models.ScanPending && scan.Status != models.ScanConfirmed {
		return models.ErrInvalidState
	}
	scan.Status = to
	if productID != nil {
		scan.MarketplaceProductID = productID
	}
	return nil
}

func (s *MemoryStore) RecordAttempt(_ context.Context, attempt *models.PublishAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ScanRecordID] = append(s.attempts[attempt.ScanRecordID], *attempt)
	return nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, scanID string) ([]models.PublishAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PublishAttempt(nil), s.attempts[scanID]...), nil
}

func (s *MemoryStore) GetOperatorByEmail(_ context.Context, email string) (*models.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (s *MemoryStore) CreateOperator(_ context.Context, op *models.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *op
	s.operators[op.Email] = &cp
	return nil
}

func (s *MemoryStore) TouchOperatorLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.operators {
		if op.ID == id {
			t := at
			op.LastLogin = &t
			return nil
		}
	}
	return models.ErrNotFound
}
