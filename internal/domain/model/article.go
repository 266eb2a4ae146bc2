package model

import "time"

// Article is one post from the school news feed. Content is sanitized HTML,
// Excerpt is plain text with all markup stripped.
type Article struct {
	ID               int64
	PublishedAt      time.Time
	Title            string
	Content          string
	Excerpt          string
	Link             string
	FeaturedMediaURL string
}
