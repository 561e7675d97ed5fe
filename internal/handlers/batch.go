package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kartoteka-app/kartotekago/internal/batch"
	"github.com/kartoteka-app/kartotekago/internal/models"
)

// StartBatchRequest points the batch controller at a local image folder
type StartBatchRequest struct {
	Directory             string `json:"directory"`
	StartingWarehouseCode string `json:"starting_warehouse_code,omitempty"`
	DryRun                bool   `json:"dry_run"`
}

// startBatch opens a session and prepares a sequential batch over the
// folder's images, ordered by filename. One batch runs at a time.
func (rt *Router) startBatch(w http.ResponseWriter, req *http.Request) {
	var body StartBatchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Directory == "" {
		respondError(w, http.StatusBadRequest, "directory is required")
		return
	}

	files, err := listImageFiles(body.Directory)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no image files in directory")
		return
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

	rt.batchMu.Lock()
	rt.batch = batch.New(session, files, rt.store, rt.resolver, rt.pipeline, body.DryRun)
	controller := rt.batch
	rt.batchMu.Unlock()

	index, file, status := controller.State()
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": session.ID,
		"files":      len(files),
		"index":      index,
		"file":       file,
		"status":     status,
	})
}

// currentBatch returns the active controller or writes a 404
func (rt *Router) currentBatch(w http.ResponseWriter) *batch.Controller {
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()
	if rt.batch == nil {
		respondError(w, http.StatusNotFound, "no active batch")
		return nil
	}
	return rt.batch
}

func (rt *Router) batchStatus(w http.ResponseWriter, req *http.Request) {
	controller := rt.currentBatch(w)
	if controller == nil {
		return
	}
	index, file, status := controller.State()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"index":   index,
		"file":    file,
		"status":  status,
		"summary": controller.Summary(),
	})
}

// batchResolve resolves the current file and suspends awaiting a decision
func (rt *Router) batchResolve(w http.ResponseWriter, req *http.Request) {
	controller := rt.currentBatch(w)
	if controller == nil {
		return
	}
	scan, err := controller.ResolveCurrent(req.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scan)
}

// BatchDecisionRequest confirms the current scan with a candidate
type BatchDecisionRequest struct {
	CandidateID string `json:"candidate_id"`
}

// batchConfirm publishes the current scan; success advances the batch,
// failure keeps the same file current so the operator can retry or skip.
func (rt *Router) batchConfirm(w http.ResponseWriter, req *http.Request) {
	controller := rt.currentBatch(w)
	if controller == nil {
		return
	}

	var body BatchDecisionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.CandidateID == "" {
		respondError(w, http.StatusBadRequest, "candidate_id is required")
		return
	}

	result, err := controller.ConfirmCurrent(req.Context(), body.CandidateID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	index, file, status := controller.State()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":  result,
		"index":   index,
		"file":    file,
		"status":  status,
		"summary": controller.Summary(),
	})
}

func (rt *Router) batchSkip(w http.ResponseWriter, req *http.Request) {
	controller := rt.currentBatch(w)
	if controller == nil {
		return
	}
	if err := controller.SkipCurrent(req.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	index, file, status := controller.State()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"index":   index,
		"file":    file,
		"status":  status,
		"summary": controller.Summary(),
	})
}

// listImageFiles returns the folder's images sorted by filename
func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
