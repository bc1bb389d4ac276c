// Package source supplies raw discussion threads to the pipeline, either
// from the Reddit listing API or from previously scraped dump files.
package source

import (
	"context"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// Thread is one post together with the comments collected for it. Comment
// parent links always point at the post or another comment in the same
// thread; anything else is treated as an orphan downstream.
type Thread struct {
	Subreddit string
	Post      core.RawItem
	Comments  []core.RawItem
}

// Source produces the threads for one subreddit and time window. The
// implementation owns rate limiting and retry policy; the pipeline treats
// returned errors as terminal for the thread set.
type Source interface {
	Threads(ctx context.Context, subreddit, window string, limit int) ([]Thread, error)
}
