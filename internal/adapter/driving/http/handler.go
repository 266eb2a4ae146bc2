// Package httphandler is the HTTP driving adapter serving the local API the
// presentation layer consumes.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkahmann/schulhub/internal/application"
	"github.com/mkahmann/schulhub/internal/domain/model"
	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter. All session and vault access goes
// through the session manager; the handler never touches the stores.
type Handler struct {
	sessions *application.SessionManager
	articles *application.ArticleService
	identity driven.IdentityClient
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	sessions *application.SessionManager,
	articles *application.ArticleService,
	identity driven.IdentityClient,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sessions: sessions,
		articles: articles,
		identity: identity,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session/login", h.Login)
	mux.HandleFunc("POST /api/v1/session/logout", h.Logout)
	mux.HandleFunc("POST /api/v1/session/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/session/reveal", h.Reveal)
	mux.HandleFunc("GET /api/v1/articles", h.ListArticles)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports agent liveness and identity-service reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	reachable, reason := h.identity.CheckReachability(r.Context())

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		Time:              time.Now().UTC().Format(time.RFC3339),
		IdentityReachable: reachable,
		IdentityReason:    reason,
	})
}

// Login authenticates with the identity service and establishes the session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	identity, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toIdentityResponse(*identity))
}

// Logout destroys the session. Always answers 204; logout cannot fail in a
// way that keeps the user signed in.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession returns the current identity and validity, or 404 when signed
// out.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.sessions.CurrentIdentity(r.Context())
	if err != nil {
		h.logger.Error("failed to read session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if identity == nil {
		writeError(w, http.StatusNotFound, "not signed in")
		return
	}

	valid, err := h.sessions.IsSessionValid(r.Context())
	if err != nil {
		h.logger.Error("failed to check session validity", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Identity: toIdentityResponse(*identity),
		Valid:    valid,
	})
}

// Refresh silently re-validates the session when needed and reports whether
// a valid session exists afterwards. A failed refresh signs the user out and
// reports valid=false rather than an error; refresh failures are silent by
// design of the protocol.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	valid, err := h.sessions.RefreshIfNeeded(r.Context())
	if err != nil && !errors.Is(err, application.ErrSuperseded) {
		h.logger.Info("refresh failed", "error", err, "kind", model.AuthKindOf(err))
	}

	writeJSON(w, http.StatusOK, RefreshResponse{Valid: valid})
}

// Reveal returns the stored password after a successful presence check.
func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	password, err := h.sessions.RevealSecret(r.Context(), req.Code)
	switch {
	case errors.Is(err, application.ErrNotSignedIn):
		writeError(w, http.StatusNotFound, "not signed in")
		return
	case errors.Is(err, driven.ErrPresenceCheckFailed):
		writeError(w, http.StatusForbidden, "presence check failed")
		return
	case errors.Is(err, driven.ErrPresenceUnavailable):
		writeError(w, http.StatusForbidden, "presence verification not available on this device")
		return
	case err != nil:
		h.logger.Error("reveal failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if password == "" {
		writeError(w, http.StatusNotFound, "no password stored")
		return
	}

	writeJSON(w, http.StatusOK, RevealResponse{Password: password})
}

// ListArticles returns the cached school news feed.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := h.articles.Articles(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch articles", "error", err)
		writeError(w, http.StatusBadGateway, "article feed unavailable")
		return
	}

	resp := make([]ArticleResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, toArticleResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAuthError translates the auth error taxonomy into status codes and
// user-facing messages: unreachable, rejected and misconfigured services
// each get a distinct message.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	var ae *model.AuthError
	if !errors.As(err, &ae) {
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch ae.Kind {
	case model.AuthErrUnreachable:
		writeError(w, http.StatusBadGateway, "identity service is unreachable: "+ae.Message)
	case model.AuthErrNetwork:
		writeError(w, http.StatusBadGateway, "network error talking to the identity service")
	case model.AuthErrServerRejected:
		writeError(w, http.StatusUnauthorized, ae.Message)
	case model.AuthErrProtocolMismatch:
		writeError(w, http.StatusBadGateway, "identity service is misconfigured (returned HTML instead of JSON)")
	case model.AuthErrMalformedResponse:
		writeError(w, http.StatusBadGateway, "identity service returned an unusable response")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
