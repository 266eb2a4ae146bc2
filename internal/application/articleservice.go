package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkahmann/schulhub/internal/domain/model"
	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// ArticleService serves the school news feed with an in-process cache. A
// fresh cache answers without a network round trip; a failed fetch falls
// back to the last good result when one exists.
type ArticleService struct {
	source driven.ArticleSource
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    []model.Article
	fetchedAt time.Time
}

// NewArticleService creates an ArticleService. ttl controls how long a
// fetched feed is served without revalidation.
func NewArticleService(source driven.ArticleSource, ttl time.Duration, logger *slog.Logger) *ArticleService {
	return &ArticleService{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Articles returns the current feed, from cache when fresh.
func (s *ArticleService) Articles(ctx context.Context) ([]model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cached) > 0 && s.now().Sub(s.fetchedAt) < s.ttl {
		return s.cached, nil
	}

	articles, err := s.source.FetchArticles(ctx)
	if err != nil {
		if len(s.cached) > 0 {
			s.logger.Warn("feed fetch failed, serving cached articles", "error", err, "cached_at", s.fetchedAt)
			return s.cached, nil
		}
		return nil, err
	}

	s.cached = articles
	s.fetchedAt = s.now()
	return articles, nil
}
