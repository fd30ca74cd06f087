package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/fileforge/fileforge/internal/middleware"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/service"
)

// AuthFlow is the OAuth service as seen by AuthHandler.
type AuthFlow interface {
	BeginLogin(ctx context.Context, provider, linkAccountID string) (string, error)
	Callback(ctx context.Context, provider, state, code string) (*service.CallbackResult, error)
	Logout(ctx context.Context, token string) error
	SessionTTL() time.Duration
}

// AuthHandlerConfig holds the browser-facing settings of the OAuth flow.
type AuthHandlerConfig struct {
	// FrontendURL is where callbacks send the browser back to.
	FrontendURL string
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
}

// AuthHandler drives OAuth login, provider linking and logout.
type AuthHandler struct {
	flow     AuthFlow
	frontend string
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(flow AuthFlow, cfg AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		flow:     flow,
		frontend: strings.TrimRight(cfg.FrontendURL, "/"),
		secure:   cfg.CookieSecure,
		logger:   logger,
	}
}

// Login handles GET /auth/{provider}/login.
// With ?link=true the provider is linked to the signed-in account.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var linkAccountID string
	if r.URL.Query().Get("link") == "true" {
		linkAccountID = auth.AccountIDFromContext(r.Context())
		if linkAccountID == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in before linking another provider")
			return
		}
	}

	redirectURL, err := h.flow.BeginLogin(r.Context(), provider, linkAccountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// Callback handles GET /auth/{provider}/callback. Every outcome ends in a
// redirect to the frontend.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Warn("oauth_denied", "provider", provider, "reason", providerErr)
		h.redirect(w, r, "/login", url.Values{"error": {"access_denied"}})
		return
	}

	result, err := h.flow.Callback(r.Context(), provider, query.Get("state"), query.Get("code"))
	if err != nil {
		reason := "auth_failed"
		if errors.Is(err, service.ErrUnauthorized) {
			reason = "invalid_state"
		}
		h.logger.Warn("oauth_callback_failed", "provider", provider, "error", err)
		h.redirect(w, r, "/login", url.Values{"error": {reason}})
		return
	}

	switch {
	case result.Refused:
		h.redirect(w, r, "/login", url.Values{"error": {"account_exists"}, "provider": {provider}})
	case result.Collision != nil:
		h.redirect(w, r, "/dashboard/account", url.Values{
			"merge":    {"1"},
			"provider": {string(result.Collision.Provider)},
			"email":    {result.Collision.Email},
		})
	case result.Link:
		h.redirect(w, r, "/dashboard/account", url.Values{"linked": {provider}})
	default:
		h.setSessionCookie(w, result.Session, result.Token)
		h.redirect(w, r, "/dashboard", nil)
	}
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Logout(r.Context(), middleware.SessionToken(r)); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session, token string) {
	maxAge := int(h.flow.SessionTTL().Seconds())
	if session != nil && !session.ExpiresAt.IsZero() {
		maxAge = int(time.Until(session.ExpiresAt).Seconds())
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) redirect(w http.ResponseWriter, r *http.Request, path string, query url.Values) {
	target := h.frontend + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
