// Package score assigns engagement values to raw posts and comments.
package score

import (
	"math"
	"time"

	"github.com/PhantoomDev/reddit-content-generator/internal/config"
	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// Engagement computes the recency-decayed engagement score for an item.
// Pure function of (item, weights, now); negative source scores clamp to
// zero before weighting. Decay halves the score every recency_decay hours.
func Engagement(item core.RawItem, w config.EngagementWeights, now time.Time) (float64, error) {
	if item.Created.IsZero() {
		return 0, &core.InvalidItemError{ItemID: item.ID, Reason: "missing creation timestamp"}
	}
	if item.Created.After(now) {
		return 0, &core.InvalidItemError{ItemID: item.ID, Reason: "creation timestamp in the future"}
	}

	upvotes := item.Score
	if upvotes < 0 {
		upvotes = 0
	}

	s := w.Upvote*float64(upvotes) +
		w.Comment*float64(item.CommentCount) +
		w.Award*float64(item.AwardCount)

	if w.RecencyDecay > 0 {
		ageHours := now.Sub(item.Created).Hours()
		s *= math.Exp2(-ageHours / w.RecencyDecay)
	}
	return s, nil
}
