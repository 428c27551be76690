package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hireloop/webhook-dispatch/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondDomainError maps the registry error taxonomy onto CRUD status
// codes: validation 400, missing 404, duplicate 409, anything else 500.
func respondDomainError(w http.ResponseWriter, err error, fallback string) {
	var verr *domain.ValidationError
	var nferr *domain.NotFoundError
	var cerr *domain.ConflictError

	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &nferr):
		respondError(w, http.StatusNotFound, nferr.Error())
	case errors.As(err, &cerr):
		respondError(w, http.StatusConflict, cerr.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
