package driven

import (
	"context"

	"github.com/mkahmann/schulhub/internal/domain/model"
)

// ArticleSource defines the driven port for the school news feed.
type ArticleSource interface {
	// FetchArticles retrieves the current feed, newest first.
	FetchArticles(ctx context.Context) ([]model.Article, error)
}
