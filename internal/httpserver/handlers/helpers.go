package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skymark/skymark/internal/auth"
	"github.com/skymark/skymark/internal/bookmarks"
	"github.com/skymark/skymark/internal/feed"
	"github.com/skymark/skymark/internal/xrpc"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Only a genuinely
// expired session carries the session_expired code; clients treat it
// as a forced logout. Everything else is transient and keeps the
// session intact.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xrpc.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "Your session expired. Please log in again.",
			Code:  "session_expired",
		})
	case errors.Is(err, xrpc.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "Not logged in.",
			Code:  "not_authenticated",
		})
	case errors.Is(err, auth.ErrAuthenticationFailed):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "Invalid identifier or password.",
			Code:  "auth_failed",
		})
	case errors.Is(err, bookmarks.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(),
			Code:  "duplicate",
		})
	case errors.Is(err, bookmarks.ErrValidationFailed):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Code:  "validation_failed",
		})
	case errors.Is(err, feed.ErrNoBookmarks):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: err.Error(),
			Code:  "no_bookmarks",
		})
	case errors.Is(err, feed.ErrAlreadyLoading):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(),
			Code:  "already_loading",
		})
	default:
		status := xrpc.StatusOf(err)
		if status < 400 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
