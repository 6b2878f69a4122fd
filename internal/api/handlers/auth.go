package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/rs/zerolog"
)

// AuthHandler issues the session cookie checked by middleware.Auth.
type AuthHandler struct {
	password     string
	secureCookie bool
	log          zerolog.Logger
}

// NewAuthHandler creates a new auth handler. secureCookie marks the cookie
// Secure and should be set when served over TLS.
func NewAuthHandler(password string, secureCookie bool, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		password:     password,
		secureCookie: secureCookie,
		log:          log,
	}
}

// Login handles POST /api/auth
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.password == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) != 1 {
		h.log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Failed login attempt")
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	http.SetCookie(w, middleware.AuthCookie(h.secureCookie))
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// Status handles GET /api/auth
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	authenticated := h.password == "" || middleware.IsAuthenticated(r)
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}
