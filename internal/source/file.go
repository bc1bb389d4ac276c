package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// FileSource reads raw scrape dump files. Dumps are JSON arrays of posts
// with flattened comment chains, the format the scraper writes into the
// raw content directory.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Threads loads dump files and returns the threads belonging to the
// subreddit. Dumps can hold a mix of subreddits; without the match each
// configured subreddit would replay every thread. The window argument is
// ignored: dumps already encode the window they were sampled from.
func (s *FileSource) Threads(_ context.Context, subreddit, _ string, limit int) ([]Thread, error) {
	pattern := filepath.Join(s.dir, "*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "glob raw dir")
	}
	sort.Strings(paths)

	var threads []Thread
	for _, path := range paths {
		loaded, err := LoadDump(path)
		if err != nil {
			return nil, &core.SourceFetchError{Thread: subreddit, Err: err}
		}
		for _, thread := range loaded {
			if !strings.EqualFold(thread.Subreddit, subreddit) {
				continue
			}
			threads = append(threads, thread)
			if limit > 0 && len(threads) >= limit {
				return threads, nil
			}
		}
	}
	return threads, nil
}

// LoadDump parses one raw dump file into threads.
func LoadDump(path string) ([]Thread, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read dump")
	}

	var posts []dumpPost
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, errors.Wrap(err, "parse dump")
	}

	threads := make([]Thread, 0, len(posts))
	for _, p := range posts {
		thread := Thread{
			Subreddit: p.Subreddit,
			Post: core.RawItem{
				ID:           p.ID,
				Kind:         core.KindPost,
				Title:        p.Title,
				Body:         p.Text,
				Score:        p.Score,
				CommentCount: p.NumComments,
				AwardCount:   p.AwardCount,
				Created:      time.Unix(int64(p.CreatedUTC), 0).UTC(),
				NSFW:         p.NSFW,
			},
		}
		for _, chain := range p.CommentChains {
			appendChain(&thread, chain, p.ID)
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

func appendChain(thread *Thread, chain dumpComment, parentID string) {
	item := core.RawItem{
		ID:       chain.ID,
		Kind:     core.KindComment,
		ParentID: parentID,
		Body:     chain.Text,
		Score:    chain.Score,
		Created:  time.Unix(int64(chain.CreatedUTC), 0).UTC(),
		Deleted:  chain.Text == "[deleted]",
		Removed:  chain.Text == "[removed]",
	}
	thread.Comments = append(thread.Comments, item)
	for _, reply := range chain.Replies {
		appendChain(thread, reply, chain.ID)
	}
}

type dumpPost struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Text          string        `json:"text"`
	Score         int64         `json:"score"`
	NumComments   int64         `json:"num_comments"`
	AwardCount    int64         `json:"award_count"`
	CreatedUTC    float64       `json:"created_utc"`
	NSFW          bool          `json:"nsfw"`
	Subreddit     string        `json:"subreddit"`
	CommentChains []dumpComment `json:"comment_chains"`
}

type dumpComment struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Score      int64         `json:"score"`
	CreatedUTC float64       `json:"created_utc"`
	Replies    []dumpComment `json:"replies"`
}
