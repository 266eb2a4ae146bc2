// Package wordpress implements the ArticleSource port against the school
// news feed. The backend's article endpoint is preferred; when it is down
// the client falls back to the school website's WordPress API directly.
package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/microcosm-cc/bluemonday"

	"github.com/mkahmann/schulhub/internal/domain/model"
	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

const maxFeedBytes = 8 << 20

// Compile-time interface satisfaction check.
var _ driven.ArticleSource = (*Client)(nil)

// Client fetches the school article feed. Responses go through an in-memory
// ETag cache so unchanged feeds cost a conditional request only.
type Client struct {
	http          *http.Client
	backendURL    string
	wordpressURL  string
	contentPolicy *bluemonday.Policy
	textPolicy    *bluemonday.Policy
	logger        *slog.Logger
}

// NewClient creates a feed client. backendURL is the agent backend's article
// endpoint and may be empty to always go to wordpressURL directly.
func NewClient(backendURL, wordpressURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		http: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   timeout,
		},
		backendURL:    backendURL,
		wordpressURL:  wordpressURL,
		contentPolicy: bluemonday.UGCPolicy(),
		textPolicy:    bluemonday.StrictPolicy(),
		logger:        logger,
	}
}

// FetchArticles retrieves the current feed, trying the backend first and
// falling back to the direct WordPress API.
func (c *Client) FetchArticles(ctx context.Context) ([]model.Article, error) {
	if c.backendURL != "" {
		articles, err := c.fetch(ctx, c.backendURL)
		if err == nil {
			return articles, nil
		}
		if c.wordpressURL == "" {
			return nil, err
		}
		c.logger.Warn("backend feed unavailable, falling back to wordpress", "error", err)
	}

	if c.wordpressURL == "" {
		return nil, fmt.Errorf("no article feed configured")
	}
	return c.fetch(ctx, c.wordpressURL)
}

func (c *Client) fetch(ctx context.Context, url string) ([]model.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	var posts []wirePost
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	articles := make([]model.Article, 0, len(posts))
	for _, p := range posts {
		articles = append(articles, c.toArticle(p))
	}
	return articles, nil
}

func (c *Client) toArticle(p wirePost) model.Article {
	return model.Article{
		ID:               p.ID,
		PublishedAt:      parseFeedDate(p.Date),
		Title:            strings.TrimSpace(c.textPolicy.Sanitize(p.Title.Rendered)),
		Content:          c.contentPolicy.Sanitize(p.Content.Rendered),
		Excerpt:          strings.TrimSpace(c.textPolicy.Sanitize(p.Excerpt.Rendered)),
		Link:             p.Link,
		FeaturedMediaURL: p.featuredMediaURL(),
	}
}

// parseFeedDate accepts both RFC3339 and WordPress's zone-less variant.
// An unparseable date yields a zero time rather than dropping the article.
func parseFeedDate(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// wirePost is the WordPress post shape; the backend mirrors it.
type wirePost struct {
	ID      int64    `json:"id"`
	Date    string   `json:"date"`
	Title   rendered `json:"title"`
	Content rendered `json:"content"`
	Excerpt rendered `json:"excerpt"`
	Link    string   `json:"link"`

	Embedded struct {
		FeaturedMedia []struct {
			SourceURL string `json:"source_url"`
		} `json:"wp:featuredmedia"`
	} `json:"_embedded"`
}

type rendered struct {
	Rendered string `json:"rendered"`
}

func (p wirePost) featuredMediaURL() string {
	if len(p.Embedded.FeaturedMedia) == 0 {
		return ""
	}
	return p.Embedded.FeaturedMedia[0].SourceURL
}
