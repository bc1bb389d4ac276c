// Package assemble groups an accepted post with a bounded selection of its
// accepted comments into narration segments.
package assemble

import (
	"sort"
	"time"

	"github.com/PhantoomDev/reddit-content-generator/internal/config"
	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// Candidate pairs a thread comment with its filter outcome. Rejected
// candidates still matter: their accepted children are re-parented to the
// nearest accepted ancestor instead of being dropped with them.
type Candidate struct {
	Item     core.ScoredItem
	Accepted bool
}

type Assembler struct {
	crit config.CriteriaConfig
}

func New(crit config.CriteriaConfig) *Assembler {
	return &Assembler{crit: crit}
}

// Assemble builds at most one segment for the post. Returns false when the
// post cannot form a segment: fewer than min_comments accepted comments
// survive the depth, reply and total caps.
func (a *Assembler) Assemble(post core.ScoredItem, comments []Candidate, now time.Time) (core.Segment, bool) {
	byID := make(map[string]*Candidate, len(comments))
	for i := range comments {
		byID[comments[i].Item.ID] = &comments[i]
	}

	// Children grouped under the nearest accepted ancestor (or the post).
	// Comments whose parent chain never reaches the post are orphans and
	// are discarded before any selection happens.
	children := make(map[string][]*Candidate)
	for i := range comments {
		c := &comments[i]
		if !c.Accepted {
			continue
		}
		parent, ok := a.acceptedAncestor(post.ID, c.Item.ParentID, byID)
		if !ok {
			continue
		}
		children[parent] = append(children[parent], c)
	}

	// Walk the re-parented tree level by level. Within a node, higher
	// quality replies win the max_replies slots; within a level, higher
	// quality comments win the remaining max_comments budget.
	selected := make([]core.ScoredItem, 0, a.crit.MaxComments)
	level := []string{post.ID}
	for depth := 1; depth <= a.crit.MaxDepth && len(level) > 0 && len(selected) < a.crit.MaxComments; depth++ {
		var levelPick []*Candidate
		for _, parentID := range level {
			kids := children[parentID]
			sortCandidates(kids)
			if len(kids) > a.crit.MaxReplies {
				kids = kids[:a.crit.MaxReplies]
			}
			levelPick = append(levelPick, kids...)
		}
		sortCandidates(levelPick)

		next := make([]string, 0, len(levelPick))
		for _, c := range levelPick {
			if len(selected) >= a.crit.MaxComments {
				break
			}
			selected = append(selected, c.Item)
			next = append(next, c.Item.ID)
		}
		level = next
	}

	if len(selected) < a.crit.MinComments {
		return core.Segment{}, false
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].QualityScore != selected[j].QualityScore {
			return selected[i].QualityScore > selected[j].QualityScore
		}
		return selected[i].Created.Before(selected[j].Created)
	})

	return core.Segment{
		ID:          "seg_" + post.ID,
		Post:        post,
		Comments:    selected,
		AssembledAt: now,
	}, true
}

// acceptedAncestor resolves a parent reference to the nearest accepted
// ancestor, skipping rejected nodes. Returns false for orphaned chains.
func (a *Assembler) acceptedAncestor(postID, parentID string, byID map[string]*Candidate) (string, bool) {
	for hops := 0; hops <= len(byID); hops++ {
		if parentID == "" || parentID == postID {
			return postID, true
		}
		parent, ok := byID[parentID]
		if !ok {
			return "", false
		}
		if parent.Accepted {
			return parent.Item.ID, true
		}
		parentID = parent.Item.ParentID
	}
	return "", false
}

func sortCandidates(cs []*Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Item.QualityScore != cs[j].Item.QualityScore {
			return cs[i].Item.QualityScore > cs[j].Item.QualityScore
		}
		return cs[i].Item.Created.Before(cs[j].Item.Created)
	})
}
