package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type credentialStore interface {
	FindByLogin(ctx context.Context, login string) (*Credentials, error)
	FindByID(ctx context.Context, userID string) (*Credentials, error)
}

// HandlerConfig wires the auth endpoints.
type HandlerConfig struct {
	TokenSvc *TokenService
	Store    credentialStore
}

// Handler handles authentication HTTP endpoints.
type Handler struct {
	tokenSvc *TokenService
	store    credentialStore
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{tokenSvc: cfg.TokenSvc, store: cfg.Store}
}

// RegisterRoutes registers the public auth routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.HandleLogin)
	mux.HandleFunc("POST /auth/token/refresh", h.HandleRefresh)
}

// HandleLogin checks a username/email and password pair and issues tokens.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)

	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "login and password are required"})
		return
	}

	creds, err := h.store.FindByLogin(r.Context(), req.Login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": ErrInvalidCredentials.Error()})
			return
		}
		slog.Error("login lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "user lookup failed"})
		return
	}

	if err := CheckPassword(creds.PasswordHash, req.Password); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": ErrInvalidCredentials.Error()})
		return
	}
	if !creds.IsActive {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": ErrUserInactive.Error()})
		return
	}

	h.issueTokens(w, &creds.Identity)
}

// HandleRefresh exchanges a refresh token for new access + refresh tokens.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	identity, err := h.tokenSvc.ValidateToken(req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}
	if identity.TokenType != TokenTypeRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token required"})
		return
	}

	if h.store != nil {
		creds, err := h.store.FindByID(r.Context(), identity.UserID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "user lookup failed"})
			return
		}
		if !creds.IsActive {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": ErrUserInactive.Error()})
			return
		}
		identity = &creds.Identity
	}

	h.issueTokens(w, identity)
}

func (h *Handler) issueTokens(w http.ResponseWriter, identity *Identity) {
	accessToken, err := h.tokenSvc.CreateAccessToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}

	refreshToken, err := h.tokenSvc.CreateRefreshToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
