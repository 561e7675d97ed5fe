package handlers

import (
	"io"
	"net/http"

	"github.com/kartoteka-app/kartotekago/internal/models"
)

const maxScanUpload = 32 << 20 // 32 MB

// submitScan accepts one card photo as multipart form data and resolves it
// into a ScanRecord with ranked, priced candidates. Provider failures
// degrade the candidate list instead of failing the request.
func (rt *Router) submitScan(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(maxScanUpload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}

	sessionID := req.FormValue("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	scan, err := rt.resolver.Resolve(req.Context(), image, header.Filename, sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"scan_id":                 scan.ID,
		"candidates":              scan.Candidates,
		"degraded":                scan.Degraded,
		"starting_warehouse_code": req.FormValue("starting_warehouse_code"),
	})
}

// listScans returns recent scan summaries, newest first
func (rt *Router) listScans(w http.ResponseWriter, req *http.Request) {
	limit := 20
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}

	scans, err := rt.store.ListScans(req.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type scanSummary struct {
		ID                   string            `json:"id"`
		SessionID            string            `json:"session_id"`
		ImageRef             string            `json:"image_ref"`
		Status               models.ScanStatus `json:"status"`
		Degraded             bool              `json:"degraded"`
		MarketplaceProductID *int64            `json:"marketplace_product_id,omitempty"`
	}
	out := make([]scanSummary, 0, len(scans))
	for _, s := range scans {
		out = append(out, scanSummary{
			ID:                   s.ID,
			SessionID:            s.SessionID,
			ImageRef:             s.ImageRef,
			Status:               s.Status,
			Degraded:             s.Degraded,
			MarketplaceProductID: s.MarketplaceProductID,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
