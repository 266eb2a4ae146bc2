package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mkahmann/schulhub/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the JSON body for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RevealRequest is the JSON body for the password reveal endpoint. Code is
// the proof of presence (the current TOTP code).
type RevealRequest struct {
	Code string `json:"code"`
}

// IdentityResponse is the JSON representation of the signed-in identity.
type IdentityResponse struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	SchoolClass string `json:"school_class,omitempty"`
	WebdavURL   string `json:"webdav_url,omitempty"`
}

// SessionResponse is the JSON representation of the current session.
type SessionResponse struct {
	Identity IdentityResponse `json:"identity"`
	Valid    bool             `json:"valid"`
}

// RefreshResponse reports whether a valid session exists after a refresh.
type RefreshResponse struct {
	Valid bool `json:"valid"`
}

// RevealResponse carries the revealed password.
type RevealResponse struct {
	Password string `json:"password"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status            string `json:"status"`
	Time              string `json:"time"`
	IdentityReachable bool   `json:"identity_reachable"`
	IdentityReason    string `json:"identity_reason,omitempty"`
}

// ArticleResponse is the JSON representation of one feed article.
type ArticleResponse struct {
	ID               int64  `json:"id"`
	PublishedAt      string `json:"published_at,omitempty"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	Excerpt          string `json:"excerpt"`
	Link             string `json:"link"`
	FeaturedMediaURL string `json:"featured_media_url,omitempty"`
}

// toIdentityResponse converts a domain Identity to its JSON representation.
func toIdentityResponse(i model.Identity) IdentityResponse {
	return IdentityResponse{
		UserID:      i.UserID,
		Username:    i.Username,
		FirstName:   i.FirstName,
		LastName:    i.LastName,
		FullName:    i.FullName(),
		Email:       i.Email,
		SchoolClass: i.SchoolClass,
		WebdavURL:   i.WebdavURL,
	}
}

// toArticleResponse converts a domain Article to its JSON representation.
func toArticleResponse(a model.Article) ArticleResponse {
	resp := ArticleResponse{
		ID:               a.ID,
		Title:            a.Title,
		Content:          a.Content,
		Excerpt:          a.Excerpt,
		Link:             a.Link,
		FeaturedMediaURL: a.FeaturedMediaURL,
	}
	if !a.PublishedAt.IsZero() {
		resp.PublishedAt = a.PublishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
