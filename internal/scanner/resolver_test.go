package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kartoteka-app/kartotekago/internal/catalog"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/pricing"
	"github.com/kartoteka-app/kartotekago/internal/recognize"
	"github.com/kartoteka-app/kartotekago/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	guess *recognize.Guess
	err   error
}

func (f fakeRecognizer) Code() string { return "fake" }
func (f fakeRecognizer) Recognize(context.Context, []byte, string) (*recognize.Guess, error) {
	return f.guess, f.err
}

type fakeSearcher struct {
	entries []catalog.Entry
	err     error
}

func (f fakeSearcher) Code() string { return "fake" }
func (f fakeSearcher) Search(context.Context, catalog.Query) ([]catalog.Entry, error) {
	return f.entries, f.err
}

var testEngine = pricing.Engine{FxRate: 4.3, Multiplier: 1.24, LocalCurrency: "PLN"}

func openSession(t *testing.T, st store.Store) *models.ScanSession {
	t.Helper()
	session := &models.ScanSession{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateSession(context.Background(), session))
	return session
}

func TestResolvePersistsRankedPricedCandidates(t *testing.T) {
	st := store.NewMemoryStore()
	session := openSession(t, st)

	rec := fakeRecognizer{guess: &recognize.Guess{Name: "Pikachu", Number: "025", SetCode: "BS", Confidence: 0.9}}
	search := fakeSearcher{entries: []catalog.Entry{
		{ID: "2", Name: "Pikachu", Number: "026", SetCode: "BS", MarketPrice: 5, Currency: "EUR"},
		{ID: "1", Name: "Pikachu", Number: "025", SetCode: "BS", MarketPrice: 10, Currency: "EUR"},
	}}

	r := NewResolver(st, recognize.NewChain(rec), catalog.NewChain(search), testEngine)
	scan, err := r.Resolve(context.Background(), []byte{0xFF}, "pikachu.jpg", session.ID)
	require.NoError(t, err)

	require.Len(t, scan.Candidates, 2)
	assert.False(t, scan.Degraded)

	// Ranks are unique and increasing; best exact match is rank 0
	for i, c := range scan.Candidates {
		assert.Equal(t, i, c.ConfidenceRank)
	}
	assert.Equal(t, "025", scan.Candidates[0].Number)
	assert.Equal(t, 53.32, scan.Candidates[0].Pricing.FinalLocalAmount)

	// The record is persisted before Resolve returns
	stored, err := st.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanPending, stored.Status)
	assert.Len(t, stored.Candidates, 2)
}

func TestResolveEmptyImage(t *testing.T) {
	st := store.NewMemoryStore()
	session := openSession(t, st)
	r := NewResolver(st, recognize.NewChain(), catalog.NewChain(), testEngine)

	_, err := r.Resolve(context.Background(), nil, "x.jpg", session.ID)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestResolveUnknownSession(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewResolver(st, recognize.NewChain(), catalog.NewChain(), testEngine)

	_, err := r.Resolve(context.Background(), []byte{1}, "x.jpg", uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveClosedSessionCreatesNoScan(t *testing.T) {
	st := store.NewMemoryStore()
	session := openSession(t, st)
	require.NoError(t, st.CloseSession(context.Background(), session.ID, time.Now().UTC()))

	r := NewResolver(st, recognize.NewChain(), catalog.NewChain(), testEngine)
	_, err := r.Resolve(context.Background(), []byte{1}, "x.jpg", session.ID)
	assert.ErrorIs(t, err, models.ErrSessionClosed)

	scans, err := st.ListSessionScans(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, scans)
}

func TestResolveDegradesOnRecognitionFailure(t *testing.T) {
	st := store.NewMemoryStore()
	session := openSession(t, st)

	rec := fakeRecognizer{err: errors.New("provider down")}
	r := NewResolver(st, recognize.NewChain(rec), catalog.NewChain(), testEngine)

	scan, err := r.Resolve(context.Background(), []byte{1}, "x.jpg", session.ID)
	require.NoError(t, err, "a failed provider must never fail the scan")

	assert.True(t, scan.Degraded)
	assert.Empty(t, scan.Candidates)

	// Even an empty result is persisted so the operator can skip it
	_, err = st.GetScan(context.Background(), scan.ID)
	assert.NoError(t, err)
}

func TestResolveDegradesOnSearchFailure(t *testing.T) {
	st := store.NewMemoryStore()
	session := openSession(t, st)

	rec := fakeRecognizer{guess: &recognize.Guess{Name: "Pikachu"}}
	search := fakeSearcher{err: errors.New("catalog down")}
	r := NewResolver(st, recognize.NewChain(rec), catalog.NewChain(search), testEngine)

	scan, err := r.Resolve(context.Background(), []byte{1}, "x.jpg", session.ID)
	require.NoError(t, err)
	assert.True(t, scan.Degraded)
	assert.Empty(t, scan.Candidates)
}

func TestResolveFallbackSearcherMarksDegraded(t *testing.T) {
	st := store.NewMemoryStore()
	session := openSession(t, st)

	rec := fakeRecognizer{guess: &recognize.Guess{Name: "Pikachu", Number: "025", SetCode: "BS"}}
	primary := fakeSearcher{err: errors.New("unreachable")}
	fallback := fakeSearcher{entries: []catalog.Entry{
		{ID: "odoo:1", Name: "Pikachu", Number: "025", SetCode: "BS", MarketPrice: 8, Currency: "EUR"},
	}}

	r := NewResolver(st, recognize.NewChain(rec), catalog.NewChain(primary, fallback), testEngine)
	scan, err := r.Resolve(context.Background(), []byte{1}, "x.jpg", session.ID)
	require.NoError(t, err)

	assert.True(t, scan.Degraded)
	require.Len(t, scan.Candidates, 1)
	assert.Equal(t, "odoo:1", scan.Candidates[0].CatalogID)
}

func TestResolveAttachesGradedReference(t *testing.T) {
	st := store.NewMemoryStore()
	session := openSession(t, st)

	graded := 150.0
	rec := fakeRecognizer{guess: &recognize.Guess{Name: "Charizard", Number: "4", SetCode: "BS"}}
	search := fakeSearcher{entries: []catalog.Entry{
		{ID: "1", Name: "Charizard", Number: "4", SetCode: "BS", MarketPrice: 100, Currency: "EUR",
			GradedLabel: "PSA 10", GradedPrice: &graded},
	}}

	r := NewResolver(st, recognize.NewChain(rec), catalog.NewChain(search), testEngine)
	scan, err := r.Resolve(context.Background(), []byte{1}, "x.jpg", session.ID)
	require.NoError(t, err)

	require.Len(t, scan.Candidates, 1)
	quote := scan.Candidates[0].Pricing
	require.NotNil(t, quote.GradedAmount)
	assert.Equal(t, 150.0, *quote.GradedAmount)
	assert.Equal(t, "PSA 10", quote.GradedLabel)
	assert.Equal(t, 533.2, quote.FinalLocalAmount)
}
