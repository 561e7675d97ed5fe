package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/kartoteka-app/kartotekago/internal/batch"
	"github.com/kartoteka-app/kartotekago/internal/config"
	"github.com/kartoteka-app/kartotekago/internal/middleware"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/publish"
	"github.com/kartoteka-app/kartotekago/internal/scanner"
	"github.com/kartoteka-app/kartotekago/internal/store"
)

// Router wraps the mux router and the pipeline services
type Router struct {
	*mux.Router
	cfg      *config.Config
	store    store.Store
	resolver *scanner.Resolver
	pipeline *publish.Pipeline

	batchMu sync.Mutex
	batch   *batch.Controller
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(cfg *config.Config, st store.Store, resolver *scanner.Resolver, pipeline *publish.Pipeline) *Router {
	rt := &Router{
		Router:   mux.NewRouter(),
		cfg:      cfg,
		store:    st,
		resolver: resolver,
		pipeline: pipeline,
	}

	// Health check endpoint
	rt.HandleFunc("/health", rt.healthCheck).Methods("GET")
	rt.HandleFunc("/api/status", rt.getStatus).Methods("GET")

	// Auth routes
	auth := rt.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", rt.login).Methods("POST")

	authMW := middleware.Auth(cfg.JWTSecret)

	// Session routes (protected)
	sessions := rt.PathPrefix("/sessions").Subrouter()
	sessions.Use(authMW)
	sessions.HandleFunc("/start", rt.startSession).Methods("POST")
	sessions.HandleFunc("", rt.listSessions).Methods("GET")
	sessions.HandleFunc("/{id}/summary", rt.sessionSummary).Methods("GET")
	sessions.HandleFunc("/{id}/close", rt.closeSession).Methods("POST")
	sessions.HandleFunc("/{id}/publish/preview", rt.publishPreview).Methods("GET")

	// Scan submission (protected)
	rt.Handle("/scan", authMW(http.HandlerFunc(rt.submitScan))).Methods("POST")

	// Scan routes (protected)
	scans := rt.PathPrefix("/scans").Subrouter()
	scans.Use(authMW)
	scans.HandleFunc("", rt.listScans).Methods("GET")
	scans.HandleFunc("/{id}", rt.getScan).Methods("GET")
	scans.HandleFunc("/{id}/choose", rt.chooseCandidate).Methods("POST")
	scans.HandleFunc("/{id}/skip", rt.skipScan).Methods("POST")
	scans.HandleFunc("/{id}/publish", rt.publishScan).Methods("POST")
	scans.HandleFunc("/{id}/label", rt.scanLabel).Methods("GET")

	// Batch routes (protected); events stream over /ws/batch
	batchRoutes := rt.PathPrefix("/batch").Subrouter()
	batchRoutes.Use(authMW)
	batchRoutes.HandleFunc("/start", rt.startBatch).Methods("POST")
	batchRoutes.HandleFunc("/status", rt.batchStatus).Methods("GET")
	batchRoutes.HandleFunc("/resolve", rt.batchResolve).Methods("POST")
	batchRoutes.HandleFunc("/confirm", rt.batchConfirm).Methods("POST")
	batchRoutes.HandleFunc("/skip", rt.batchSkip).Methods("POST")

	rt.HandleFunc("/ws/batch", rt.batchEvents)

	return rt
}

// healthCheck returns the health status of the API
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getStatus returns the current status
func (rt *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"version": "1.0.0",
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps pipeline errors onto HTTP status codes.
// Marketplace validation failures keep the provider's detail payload so
// the operator can correct and retry.
func respondServiceError(w http.ResponseWriter, err error) {
	var mErr *models.MarketplaceError
	switch {
	case errors.As(err, &mErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   mErr.Message,
			"details": mErr.Details,
		})
	case errors.Is(err, models.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSessionClosed):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidState):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}
