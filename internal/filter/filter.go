// Package filter applies the two-phase accept/reject rules that decide
// which posts and comments survive into narration.
package filter

import (
	"strings"

	"github.com/PhantoomDev/reddit-content-generator/internal/config"
	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// Reject reasons recorded in run summaries and metrics.
const (
	ReasonEmptyBody      = "empty_body"
	ReasonTooShort       = "too_short"
	ReasonTooLong        = "too_long"
	ReasonTitleTooLong   = "title_too_long"
	ReasonLineBreaks     = "too_many_line_breaks"
	ReasonNSFW           = "nsfw"
	ReasonDeleted        = "deleted"
	ReasonRemoved        = "removed"
	ReasonAutomod        = "automod"
	ReasonExcludedPhrase = "excluded_phrase"
	ReasonExcludedTopic  = "excluded_topic"
	ReasonLowScore       = "low_score"
	ReasonLowQuality     = "low_quality"
)

// Decision is the outcome of a filter check. QualityScore is only
// meaningful when the item passed the hard filters (Reason is empty or
// ReasonLowQuality).
type Decision struct {
	Accepted     bool
	Reason       string
	QualityScore float64
}

// Filter evaluates items against configured criteria. Identical input and
// configuration always yield the identical decision and score.
type Filter struct {
	crit           config.CriteriaConfig
	weights        config.QualityWeights
	phrases        []string
	topics         []string
	excludeNSFW    bool
	excludeDeleted bool
}

func New(cfg config.FilteringConfig, scraping config.ScrapingConfig) *Filter {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return &Filter{
		crit:           cfg.Criteria,
		weights:        cfg.QualityWeights,
		phrases:        lower(cfg.ContentFilters.ExcludedPhrases),
		topics:         lower(cfg.ContentFilters.ExcludedTopics),
		excludeNSFW:    scraping.ExcludeNSFW,
		excludeDeleted: scraping.ExcludeDeleted,
	}
}

// Check runs both phases. The engagement score must already be computed;
// it feeds the soft quality metric but plays no part in the hard filters.
func (f *Filter) Check(item core.RawItem, engagement float64) Decision {
	if reason := f.hardReject(item); reason != "" {
		return Decision{Reason: reason}
	}

	q := f.qualityScore(item, engagement)
	if q < f.crit.MinQualityScore {
		return Decision{Reason: ReasonLowQuality, QualityScore: q}
	}
	return Decision{Accepted: true, QualityScore: q}
}

func (f *Filter) hardReject(item core.RawItem) string {
	switch {
	case item.Automod:
		return ReasonAutomod
	case f.excludeNSFW && item.NSFW:
		return ReasonNSFW
	case f.excludeDeleted && item.Deleted:
		return ReasonDeleted
	case f.excludeDeleted && item.Removed:
		return ReasonRemoved
	}

	if item.Kind == core.KindPost {
		if len(item.Title) == 0 {
			return ReasonEmptyBody
		}
		if len(item.Title) > f.crit.MaxTitleLength {
			return ReasonTitleTooLong
		}
		if item.Score < f.crit.MinPostScore {
			return ReasonLowScore
		}
	} else {
		if len(item.Body) == 0 {
			return ReasonEmptyBody
		}
		if len(item.Body) < f.crit.MinTextLength {
			return ReasonTooShort
		}
		if len(item.Body) > f.crit.MaxTextLength {
			return ReasonTooLong
		}
		if item.Score < f.crit.MinCommentScore {
			return ReasonLowScore
		}
	}

	if strings.Count(item.Body, "\n") > f.crit.MaxLineBreaks {
		return ReasonLineBreaks
	}

	haystack := strings.ToLower(item.Title + "\n" + item.Body)
	for _, phrase := range f.phrases {
		if strings.Contains(haystack, phrase) {
			return ReasonExcludedPhrase
		}
	}
	for _, topic := range f.topics {
		if strings.Contains(haystack, topic) {
			return ReasonExcludedTopic
		}
	}
	return ""
}

// qualityScore is the weighted sum of four normalized metrics, clamped to
// [0,1].
func (f *Filter) qualityScore(item core.RawItem, engagement float64) float64 {
	text := item.Body
	if item.Kind == core.KindPost && text == "" {
		text = item.Title
	}

	engagementScore := engagement / f.crit.EngagementNorm
	if engagementScore > 1 {
		engagementScore = 1
	}

	lengthScore := float64(len(text)) / float64(f.crit.MaxTextLength)
	if lengthScore > 1 {
		lengthScore = 1
	}

	lines := strings.Split(text, "\n")
	formatted := 0
	for _, line := range lines {
		if len(strings.TrimSpace(line)) >= f.crit.MinLineLength {
			formatted++
		}
	}
	formattingScore := float64(formatted) / float64(max(len(lines), 1))

	words := strings.Fields(strings.ToLower(text))
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	varietyScore := float64(len(unique)) / float64(max(len(words), 1))

	q := engagementScore*f.weights.Engagement +
		lengthScore*f.weights.Length +
		formattingScore*f.weights.Formatting +
		varietyScore*f.weights.Variety

	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}
