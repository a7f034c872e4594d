package handlers

import (
	"net/http"

	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/logger"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// sessionView is the session as exposed to clients. Tokens never
// leave the server.
type sessionView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

func viewOf(sess *domain.Session) sessionView {
	return sessionView{
		DID:         sess.DID,
		Handle:      sess.Handle,
		DisplayName: sess.DisplayName,
	}
}

func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if req.Identifier == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "identifier and password are required"})
			return
		}

		sess, err := d.Auth.Login(r.Context(), req.Identifier, req.Password)
		if err != nil {
			d.Logger.Warn("login failed",
				logger.String("identifier", req.Identifier),
				logger.Error(err))
			writeError(w, err)
			return
		}
		if d.StartRefresher != nil {
			d.StartRefresher()
		}
		writeJSON(w, http.StatusOK, viewOf(sess))
	}
}

func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Auth.Logout(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func Session(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := d.Auth.CurrentSession(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if sess == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"authenticated": true,
			"session":       viewOf(sess),
		})
	}
}
