package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/publish"
)

// StartSessionRequest opens a new scan session
type StartSessionRequest struct {
	StartingWarehouseCode string `json:"starting_warehouse_code,omitempty"`
}

// startSession always succeeds: sessions are independent scopes, not locks
func (rt *Router) startSession(w http.ResponseWriter, req *http.Request) {
	var body StartSessionRequest
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	session := &models.ScanSession{
		ID:                    uuid.NewString(),
		StartingWarehouseCode: body.StartingWarehouseCode,
		CreatedAt:             time.Now().UTC(),
	}
	if err := rt.store.CreateSession(req.Context(), session); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (rt *Router) listSessions(w http.ResponseWriter, req *http.Request) {
	sessions, err := rt.store.ListSessions(req.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (rt *Router) sessionSummary(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	summary, err := rt.store.SessionSummary(req.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// closeSession is idempotent; closing twice is a no-op
func (rt *Router) closeSession(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if err := rt.store.CloseSession(req.Context(), id, time.Now().UTC()); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// PreviewEntry is one would-be product in the publish preview
type PreviewEntry struct {
	ScanID  string      `json:"scan_id"`
	Payload interface{} `json:"payload"`
}

// publishPreview lists the product payloads that a publish of every
// confirmed, unpublished scan in the session would submit. Read-only.
func (rt *Router) publishPreview(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	session, err := rt.store.GetSession(req.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	scans, err := rt.store.ListSessionScans(req.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	preview := make([]PreviewEntry, 0)
	for i := range scans {
		if scans[i].Status != models.ScanConfirmed {
			continue
		}
		chosen := scans[i].ChosenCandidate()
		if chosen == nil {
			continue
		}
		payload := rt.pipeline.BuildPayload(chosen, session.StartingWarehouseCode, publish.Images{})
		preview = append(preview, PreviewEntry{ScanID: scans[i].ID, Payload: payload})
	}
	respondJSON(w, http.StatusOK, preview)
}
