package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kartoteka-app/kartotekago/internal/utils"
)

// LoginRequest is the operator login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login authenticates an operator and issues tokens
func (rt *Router) login(w http.ResponseWriter, req *http.Request) {
	var body LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Email == "" || body.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	op, err := rt.store.GetOperatorByEmail(req.Context(), body.Email)
	if err != nil || !op.IsActive || !utils.CheckPasswordHash(body.Password, op.Password) {
		// Same answer for unknown account and bad password
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	accessToken, refreshToken, err := utils.GenerateTokens(op, rt.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	_ = rt.store.TouchOperatorLogin(req.Context(), op.ID, time.Now().UTC())

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"operator":      op,
	})
}
