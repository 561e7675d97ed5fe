package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, s Store) *models.ScanSession {
	t.Helper()
	session := &models.ScanSession{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateSession(context.Background(), session))
	return session
}

func newTestScan(t *testing.T, s Store, sessionID string, candidates int) *models.ScanRecord {
	t.Helper()
	scan := &models.ScanRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ImageRef:  "card.jpg",
		Status:    models.ScanPending,
		CreatedAt: time.Now().UTC(),
	}
	for i := 0; i < candidates; i++ {
		scan.Candidates = append(scan.Candidates, models.Candidate{
			ID:             uuid.NewString(),
			ScanRecordID:   scan.ID,
			Name:           "Pikachu",
			Number:         "025",
			SetCode:        "BS",
			ConfidenceRank: i,
		})
	}
	require.NoError(t, s.CreateScan(context.Background(), scan))
	return scan
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession(t, s)

	first := time.Now().UTC()
	require.NoError(t, s.CloseSession(ctx, session.ID, first))
	require.NoError(t, s.CloseSession(ctx, session.ID, first.Add(time.Hour)))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, first, *got.ClosedAt, "second close must not move the timestamp")
}

func TestCloseSessionUnknown(t *testing.T) {
	s := NewMemoryStore()
	err := s.CloseSession(context.Background(), uuid.NewString(), time.Now())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChooseCandidateIsMutuallyExclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession(t, s)
	scan := newTestScan(t, s, session.ID, 3)

	require.NoError(t, s.ChooseCandidate(ctx, scan.ID, scan.Candidates[0].ID))
	require.NoError(t, s.ChooseCandidate(ctx, scan.ID, scan.Candidates[1].ID))

	got, err := s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanConfirmed, got.Status)

	chosen := 0
	for _, c := range got.Candidates {
		if c.Chosen {
			chosen++
			assert.Equal(t, scan.Candidates[1].ID, c.ID)
		}
	}
	assert.Equal(t, 1, chosen, "exactly one candidate may be chosen")
}

func TestChooseCandidateRejectsForeignCandidate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession(t, s)
	scan := newTestScan(t, s, session.ID, 1)
	other := newTestScan(t, s, session.ID, 1)

	err := s.ChooseCandidate(ctx, scan.ID, other.Candidates[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMarkPublishedIsCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession(t, s)
	scan := newTestScan(t, s, session.ID, 1)

	require.NoError(t, s.ChooseCandidate(ctx, scan.ID, scan.Candidates[0].ID))
	require.NoError(t, s.MarkPublished(ctx, scan.ID, 777))

	// The losing racer observes the terminal status
	err := s.MarkPublished(ctx, scan.ID, 888)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	got, err := s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanPublished, got.Status)
	require.NotNil(t, got.MarketplaceProductID)
	assert.Equal(t, int64(777), *got.MarketplaceProductID)
}

func TestMarkSkippedFromTerminalStateFails(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession(t, s)
	scan := newTestScan(t, s, session.ID, 1)

	require.NoError(t, s.MarkPublished(ctx, scan.ID, 1))
	assert.ErrorIs(t, s.MarkSkipped(ctx, scan.ID), models.ErrInvalidState)
}

func TestSessionSummaryCounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession(t, s)

	published := newTestScan(t, s, session.ID, 1)
	require.NoError(t, s.MarkPublished(ctx, published.ID, 1))

	confirmed := newTestScan(t, s, session.ID, 1)
	require.NoError(t, s.ChooseCandidate(ctx, confirmed.ID, confirmed.Candidates[0].ID))

	skipped := newTestScan(t, s, session.ID, 0)
	require.NoError(t, s.MarkSkipped(ctx, skipped.ID))

	newTestScan(t, s, session.ID, 2) // stays pending

	summary, err := s.SessionSummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.ScanCount)
	assert.Equal(t, int64(1), summary.ConfirmedCount)
	assert.Equal(t, int64(1), summary.PublishedCount)
	assert.Equal(t, int64(1), summary.SkippedCount)
}

func TestSessionSummaryUnknownSession(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.SessionSummary(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetScanOrdersCandidatesByRank(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession(t, s)

	scan := &models.ScanRecord{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Status:    models.ScanPending,
		CreatedAt: time.Now().UTC(),
		Candidates: []models.Candidate{
			{ID: uuid.NewString(), ConfidenceRank: 2},
			{ID: uuid.NewString(), ConfidenceRank: 0},
			{ID: uuid.NewString(), ConfidenceRank: 1},
		},
	}
	require.NoError(t, s.CreateScan(ctx, scan))

	got, err := s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	for i, c := range got.Candidates {
		assert.Equal(t, i, c.ConfidenceRank)
	}
}
