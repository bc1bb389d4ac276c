package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

const defaultBaseURL = "https://www.reddit.com"

// RedditClient fetches threads from the public Reddit JSON listing API.
// One limiter covers all requests so the configured requests-per-minute
// budget holds across concurrent workers.
type RedditClient struct {
	baseURL    string
	userAgent  string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	rng        *rand.Rand
}

type RedditOptions struct {
	BaseURL           string
	UserAgent         string
	RequestsPerMinute int
	MaxRetries        int
	RetryDelay        time.Duration
	Seed              int64
}

func NewRedditClient(opts RedditOptions) *RedditClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	agent := opts.UserAgent
	if agent == "" {
		agent = "reddit-content-generator/1.0"
	}
	return &RedditClient{
		baseURL:    base,
		userAgent:  agent,
		http:       &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Threads pulls a post listing for the window and then each post's comment
// tree. Listing sort varies between hot/top/rising/new to keep the pull
// from collapsing onto whatever is currently trending.
func (c *RedditClient) Threads(ctx context.Context, subreddit, window string, limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = 25
	}
	sort := c.pickSort()
	listingURL := fmt.Sprintf("%s/r/%s/%s.json?limit=%d", c.baseURL, subreddit, sort, limit)
	if sort == "top" {
		listingURL += "&t=" + window
	}

	var listing listingEnvelope
	if err := c.getJSON(ctx, listingURL, &listing); err != nil {
		return nil, &core.SourceFetchError{Thread: subreddit, Err: err}
	}

	threads := make([]Thread, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data.toPost()
		comments, err := c.comments(ctx, subreddit, post.ID)
		if err != nil {
			slog.Warn("comment fetch failed, thread skipped", "subreddit", subreddit, "post", post.ID, "err", err)
			continue
		}
		threads = append(threads, Thread{Subreddit: subreddit, Post: post, Comments: comments})
	}
	return threads, nil
}

func (c *RedditClient) comments(ctx context.Context, subreddit, postID string) ([]core.RawItem, error) {
	url := fmt.Sprintf("%s/r/%s/comments/%s.json", c.baseURL, subreddit, postID)

	var pages []listingEnvelope
	if err := c.getJSON(ctx, url, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, nil
	}

	var out []core.RawItem
	collectComments(pages[1].Data.Children, postID, &out)
	return out, nil
}

// getJSON performs a rate-limited GET with retry/backoff on transient
// failures. HTTP 429 and 5xx are transient; anything else fails outright.
func (c *RedditClient) getJSON(ctx context.Context, url string, out any) error {
	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, "build request")
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = errors.Errorf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("status %d", resp.StatusCode)
		}
		return errors.Wrap(json.Unmarshal(body, out), "decode response")
	}
	return errors.Wrapf(lastErr, "retries exhausted after %d attempts", attempts)
}

func (c *RedditClient) pickSort() string {
	sorts := []struct {
		name   string
		weight float64
	}{
		{"hot", 0.35},
		{"top", 0.30},
		{"rising", 0.20},
		{"new", 0.15},
	}
	roll := c.rng.Float64()
	acc := 0.0
	for _, s := range sorts {
		acc += s.weight
		if roll < acc {
			return s.name
		}
	}
	return "new"
}

type listingChild struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type listingEnvelope struct {
	Data struct {
		Children []listingChild `json:"children"`
	} `json:"data"`
}

// thingData covers the fields shared by post and comment things.
type thingData struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	SelfText     string          `json:"selftext"`
	Body         string          `json:"body"`
	Score        int64           `json:"score"`
	NumComments  int64           `json:"num_comments"`
	TotalAwards  int64           `json:"total_awards_received"`
	CreatedUTC   float64         `json:"created_utc"`
	Over18       bool            `json:"over_18"`
	Author       string          `json:"author"`
	ParentID     string          `json:"parent_id"`
	RemovedByCat string          `json:"removed_by_category"`
	Replies      json.RawMessage `json:"replies"`
}

func (d thingData) toPost() core.RawItem {
	return core.RawItem{
		ID:           d.ID,
		Kind:         core.KindPost,
		Title:        d.Title,
		Body:         d.SelfText,
		Score:        d.Score,
		CommentCount: d.NumComments,
		AwardCount:   d.TotalAwards,
		Created:      time.Unix(int64(d.CreatedUTC), 0).UTC(),
		NSFW:         d.Over18,
		Deleted:      d.SelfText == "[deleted]" || d.Author == "[deleted]",
		Removed:      d.RemovedByCat != "",
	}
}

func (d thingData) toComment(postID string) core.RawItem {
	parent := strings.TrimPrefix(strings.TrimPrefix(d.ParentID, "t1_"), "t3_")
	if parent == "" {
		parent = postID
	}
	return core.RawItem{
		ID:         d.ID,
		Kind:       core.KindComment,
		ParentID:   parent,
		Body:       d.Body,
		Score:      d.Score,
		AwardCount: d.TotalAwards,
		Created:    time.Unix(int64(d.CreatedUTC), 0).UTC(),
		Deleted:    d.Body == "[deleted]",
		Removed:    d.Body == "[removed]",
		Automod:    d.Author == "AutoModerator",
	}
}

func collectComments(children []listingChild, postID string, out *[]core.RawItem) {
	for _, child := range children {
		if child.Kind != "t1" || child.Data.ID == "" {
			continue
		}
		*out = append(*out, child.Data.toComment(postID))
		if len(child.Data.Replies) > 0 && string(child.Data.Replies) != `""` {
			var nested listingEnvelope
			if err := json.Unmarshal(child.Data.Replies, &nested); err == nil {
				collectComments(nested.Data.Children, postID, out)
			}
		}
	}
}
