package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kartoteka-app/kartotekago/internal/catalog"
	"github.com/kartoteka-app/kartotekago/internal/config"
	"github.com/kartoteka-app/kartotekago/internal/marketplace/shoper"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/pricing"
	"github.com/kartoteka-app/kartotekago/internal/publish"
	"github.com/kartoteka-app/kartotekago/internal/recognize"
	"github.com/kartoteka-app/kartotekago/internal/scanner"
	"github.com/kartoteka-app/kartotekago/internal/store"
	"github.com/kartoteka-app/kartotekago/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct{}

func (stubRecognizer) Code() string { return "stub" }
func (stubRecognizer) Recognize(context.Context, []byte, string) (*recognize.Guess, error) {
	return &recognize.Guess{Name: "Pikachu", Number: "025", SetCode: "BS", Confidence: 0.9}, nil
}

type stubSearcher struct{}

func (stubSearcher) Code() string { return "stub" }
func (stubSearcher) Search(context.Context, catalog.Query) ([]catalog.Entry, error) {
	return []catalog.Entry{
		{ID: "1", Name: "Pikachu", Number: "025", SetCode: "BS", MarketPrice: 10, Currency: "EUR"},
		{ID: "2", Name: "Pikachu", Number: "026", SetCode: "BS", MarketPrice: 5, Currency: "EUR"},
	}, nil
}

type stubMarketplace struct {
	nextID int64
	calls  int
}

func (f *stubMarketplace) CreateProduct(context.Context, shoper.ProductPayload) (int64, error) {
	f.calls++
	f.nextID++
	return f.nextID, nil
}

type testAPI struct {
	server *httptest.Server
	store  store.Store
	market *stubMarketplace
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		JWTSecret: "test-secret",
		Shoper:    config.ShoperConfig{BaseURL: "https://shop.example.com"},
		Publish:   config.PublishConfig{CodePrefix: "KRT", DefaultCategoryID: 1},
	}

	st := store.NewMemoryStore()
	engine := pricing.Engine{FxRate: 4.3, Multiplier: 1.24, LocalCurrency: "PLN"}
	resolver := scanner.NewResolver(st, recognize.NewChain(stubRecognizer{}), catalog.NewChain(stubSearcher{}), engine)
	market := &stubMarketplace{}
	pipeline := publish.NewPipeline(st, market, cfg.Publish)

	hash, err := utils.HashPassword("secret123")
	require.NoError(t, err)
	op := &models.Operator{ID: uuid.NewString(), Email: "operator@kartoteka.app", Password: hash, Role: "operator", IsActive: true}
	require.NoError(t, st.CreateOperator(context.Background(), op))

	access, _, err := utils.GenerateTokens(op, cfg.JWTSecret)
	require.NoError(t, err)

	router := NewRouter(cfg, st, resolver, pipeline)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testAPI{server: server, store: st, market: market, token: access}
}

func (api *testAPI) do(t *testing.T, method, path string, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, api.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+api.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// multipartBody builds a multipart payload from field values and one byte file
func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, file []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), buf.Bytes()
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(map[string]string{"email": "operator@kartoteka.app", "password": "secret123"})
	resp, err := http.Post(api.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	decodeBody(t, resp, &out)
	assert.NotEmpty(t, out["access_token"])
	assert.NotEmpty(t, out["refresh_token"])

	// Wrong password and unknown account get the same answer
	body, _ = json.Marshal(map[string]string{"email": "operator@kartoteka.app", "password": "wrong"})
	resp, err = http.Post(api.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body, _ = json.Marshal(map[string]string{"email": "ghost@kartoteka.app", "password": "secret123"})
	resp, err = http.Post(api.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Post(api.server.URL+"/sessions/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestScanToPublishFlow walks the full pipeline over HTTP: open a session,
// submit a photo, choose a candidate, publish, and verify the second
// publish is rejected.
func TestScanToPublishFlow(t *testing.T) {
	api := newTestAPI(t)

	// start a session
	body, _ := json.Marshal(map[string]string{"starting_warehouse_code": "WAW1"})
	resp := api.do(t, "POST", "/sessions/start", "application/json", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session models.ScanSession
	decodeBody(t, resp, &session)
	require.NotEmpty(t, session.ID)
	assert.Equal(t, "WAW1", session.StartingWarehouseCode)

	// submit a scan
	ct, payload := multipartBody(t, map[string]string{"session_id": session.ID}, "file", "pikachu.jpg", []byte{0xFF, 0xD8})
	resp = api.do(t, "POST", "/scan", ct, payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var scanResp struct {
		ScanID     string             `json:"scan_id"`
		Candidates []models.Candidate `json:"candidates"`
		Degraded   bool               `json:"degraded"`
	}
	decodeBody(t, resp, &scanResp)
	require.Len(t, scanResp.Candidates, 2)
	assert.False(t, scanResp.Degraded)
	assert.Equal(t, "025", scanResp.Candidates[0].Number)
	assert.Equal(t, 53.32, scanResp.Candidates[0].Pricing.FinalLocalAmount)

	// choose the top candidate
	body, _ = json.Marshal(map[string]string{"candidate_id": scanResp.Candidates[0].ID})
	resp = api.do(t, "POST", "/scans/"+scanResp.ScanID+"/choose", "application/json", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var confirmed models.ScanRecord
	decodeBody(t, resp, &confirmed)
	assert.Equal(t, models.ScanConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ChosenCandidate())

	// publish
	data, _ := json.Marshal(map[string]interface{}{"candidate_id": scanResp.Candidates[0].ID, "dry_run": false})
	ct, payload = multipartBody(t, map[string]string{"data": string(data)}, "primary_image", "pikachu.jpg", []byte{0xFF, 0xD8})
	resp = api.do(t, "POST", "/scans/"+scanResp.ScanID+"/publish", ct, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var published struct {
		ShoperID *int64 `json:"shoper_id"`
	}
	decodeBody(t, resp, &published)
	require.NotNil(t, published.ShoperID)
	assert.Equal(t, int64(1), *published.ShoperID)

	// scan is now published
	resp = api.do(t, "GET", "/scans/"+scanResp.ScanID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored models.ScanRecord
	decodeBody(t, resp, &stored)
	assert.Equal(t, models.ScanPublished, stored.Status)
	require.NotNil(t, stored.MarketplaceProductID)
	assert.Equal(t, int64(1), *stored.MarketplaceProductID)

	// a second publish is a state conflict and creates no second product
	ct, payload = multipartBody(t, map[string]string{"data": string(data)}, "", "", nil)
	resp = api.do(t, "POST", "/scans/"+scanResp.ScanID+"/publish", ct, payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 1, api.market.calls)

	// label renders as PDF for the published scan
	resp = api.do(t, "GET", "/scans/"+scanResp.ScanID+"/label", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	// session summary reflects the published scan
	resp = api.do(t, "GET", "/sessions/"+session.ID+"/summary", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary models.SessionSummary
	decodeBody(t, resp, &summary)
	assert.Equal(t, int64(1), summary.ScanCount)
	assert.Equal(t, int64(1), summary.PublishedCount)
}

func TestDryRunPublishDoesNotChangeStatus(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, "POST", "/sessions/start", "application/json", nil)
	var session models.ScanSession
	decodeBody(t, resp, &session)

	ct, payload := multipartBody(t, map[string]string{"session_id": session.ID}, "file", "card.jpg", []byte{1})
	resp = api.do(t, "POST", "/scan", ct, payload)
	var scanResp struct {
		ScanID     string             `json:"scan_id"`
		Candidates []models.Candidate `json:"candidates"`
	}
	decodeBody(t, resp, &scanResp)

	data, _ := json.Marshal(map[string]interface{}{"candidate_id": scanResp.Candidates[0].ID, "dry_run": true})
	ct, payload = multipartBody(t, map[string]string{"data": string(data)}, "", "", nil)
	resp = api.do(t, "POST", "/scans/"+scanResp.ScanID+"/publish", ct, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var preview struct {
		DryRun  bool                  `json:"dry_run"`
		Payload shoper.ProductPayload `json:"payload"`
	}
	decodeBody(t, resp, &preview)
	assert.True(t, preview.DryRun)
	assert.Equal(t, "KRT-BS-025", preview.Payload.Code)
	assert.Equal(t, 0, api.market.calls)

	scan, err := api.store.GetScan(context.Background(), scanResp.ScanID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanPending, scan.Status)
}

func TestSubmitScanToClosedSession(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, "POST", "/sessions/start", "application/json", nil)
	var session models.ScanSession
	decodeBody(t, resp, &session)

	resp = api.do(t, "POST", "/sessions/"+session.ID+"/close", "application/json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ct, payload := multipartBody(t, map[string]string{"session_id": session.ID}, "file", "card.jpg", []byte{1})
	resp = api.do(t, "POST", "/scan", ct, payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// closing again stays idempotent
	resp = api.do(t, "POST", "/sessions/"+session.ID+"/close", "application/json", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitScanValidation(t *testing.T) {
	api := newTestAPI(t)

	// missing session_id
	ct, payload := multipartBody(t, nil, "file", "card.jpg", []byte{1})
	resp := api.do(t, "POST", "/scan", ct, payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unknown session
	ct, payload = multipartBody(t, map[string]string{"session_id": uuid.NewString()}, "file", "card.jpg", []byte{1})
	resp = api.do(t, "POST", "/scan", ct, payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// missing file
	ct, payload = multipartBody(t, map[string]string{"session_id": uuid.NewString()}, "", "", nil)
	resp = api.do(t, "POST", "/scan", ct, payload)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishPreview(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, "POST", "/sessions/start", "application/json", nil)
	var session models.ScanSession
	decodeBody(t, resp, &session)

	// two scans, only the confirmed one shows up in the preview
	var scanIDs []string
	var candidateIDs []string
	for i := 0; i < 2; i++ {
		ct, payload := multipartBody(t, map[string]string{"session_id": session.ID}, "file", fmt.Sprintf("card%d.jpg", i), []byte{1})
		resp = api.do(t, "POST", "/scan", ct, payload)
		var scanResp struct {
			ScanID     string             `json:"scan_id"`
			Candidates []models.Candidate `json:"candidates"`
		}
		decodeBody(t, resp, &scanResp)
		scanIDs = append(scanIDs, scanResp.ScanID)
		candidateIDs = append(candidateIDs, scanResp.Candidates[0].ID)
	}

	body, _ := json.Marshal(map[string]string{"candidate_id": candidateIDs[0]})
	resp = api.do(t, "POST", "/scans/"+scanIDs[0]+"/choose", "application/json", body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, "GET", "/sessions/"+session.ID+"/publish/preview", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var preview []PreviewEntry
	decodeBody(t, resp, &preview)
	require.Len(t, preview, 1)
	assert.Equal(t, scanIDs[0], preview[0].ScanID)
	assert.Equal(t, 0, api.market.calls, "preview must not touch the marketplace")
}

func TestSkipScan(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, "POST", "/sessions/start", "application/json", nil)
	var session models.ScanSession
	decodeBody(t, resp, &session)

	ct, payload := multipartBody(t, map[string]string{"session_id": session.ID}, "file", "card.jpg", []byte{1})
	resp = api.do(t, "POST", "/scan", ct, payload)
	var scanResp struct {
		ScanID string `json:"scan_id"`
	}
	decodeBody(t, resp, &scanResp)

	resp = api.do(t, "POST", "/scans/"+scanResp.ScanID+"/skip", "application/json", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// skipping a terminal scan is a conflict
	resp = api.do(t, "POST", "/scans/"+scanResp.ScanID+"/skip", "application/json", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSessionListAndScanList(t *testing.T) {
	api := newTestAPI(t)

	for i := 0; i < 3; i++ {
		resp := api.do(t, "POST", "/sessions/start", "application/json", nil)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := api.do(t, "GET", "/sessions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sessions []models.ScanSession
	decodeBody(t, resp, &sessions)
	assert.Len(t, sessions, 3)

	resp = api.do(t, "GET", "/scans?limit=5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scans []map[string]interface{}
	decodeBody(t, resp, &scans)
	assert.Empty(t, scans)
}
