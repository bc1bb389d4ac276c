// Package script turns sealed segments into narration scripts: ordered
// speaker blocks with text cleaned up for speech synthesis.
package script

import (
	"regexp"
	"strings"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
)

// Speaker roles assigned to blocks. The title is narrated once, top-level
// comments get the commenter voice, nested replies the replier voice.
const (
	SpeakerNarrator  = "narrator"
	SpeakerCommenter = "commenter"
	SpeakerReplier   = "replier"
)

// wordsPerSecond drives the rough duration estimate.
const wordsPerSecond = 2.5

// Formatting holds the pause tokens spliced into cleaned text.
type Formatting struct {
	PauseShort string `yaml:"pause_short"`
	PauseLong  string `yaml:"pause_long"`
}

func DefaultFormatting() Formatting {
	return Formatting{PauseShort: ",", PauseLong: "..."}
}

// SpeakerBlock is one utterance with its assigned voice.
type SpeakerBlock struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Narration is a segment prepared for speech synthesis, with metadata the
// later audio and video steps need.
type Narration struct {
	SegmentID        string         `json:"segment_id"`
	Blocks           []SpeakerBlock `json:"speaker_blocks"`
	Title            string         `json:"title"`
	EngagementScore  float64        `json:"engagement_score"`
	DurationEstimate float64        `json:"duration_estimate"`
	SpeakerCount     int            `json:"speaker_count"`
}

// Processor converts segments into narrations. Safe for concurrent use.
type Processor struct {
	fmtg       Formatting
	urlRE      *regexp.Regexp
	markdownRE *regexp.Regexp
	thousandRE *regexp.Regexp
	millionRE  *regexp.Regexp
	sentenceRE *regexp.Regexp
}

func NewProcessor(f Formatting) *Processor {
	if f.PauseShort == "" && f.PauseLong == "" {
		f = DefaultFormatting()
	}
	return &Processor{
		fmtg:       f,
		urlRE:      regexp.MustCompile(`http\S+|www\.\S+`),
		markdownRE: regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`),
		thousandRE: regexp.MustCompile(`(\d+)[kK]\b`),
		millionRE:  regexp.MustCompile(`(\d+(\.\d+)?)[mM]\b`),
		sentenceRE: regexp.MustCompile(`([.!?])\s+`),
	}
}

// CleanForTTS strips link noise, expands numeric shorthand and inserts
// pause tokens so the synthesized voice paces naturally.
func (p *Processor) CleanForTTS(text string) string {
	// Markdown links first: the URL pattern would otherwise eat the
	// closing paren and leave the bracketed label behind.
	text = p.markdownRE.ReplaceAllString(text, "$1")
	text = p.urlRE.ReplaceAllString(text, "")

	text = strings.ReplaceAll(text, "...", p.fmtg.PauseLong)
	text = strings.ReplaceAll(text, "--", p.fmtg.PauseShort)

	text = p.thousandRE.ReplaceAllString(text, "$1 thousand")
	text = p.millionRE.ReplaceAllString(text, "$1 million")

	text = p.sentenceRE.ReplaceAllString(text, "$1"+p.fmtg.PauseShort+" ")

	return strings.Join(strings.Fields(text), " ")
}

// Narrate builds the speaker blocks for one segment: title first, then
// comments in segment order with voices assigned by nesting.
func (p *Processor) Narrate(seg core.Segment) Narration {
	blocks := make([]SpeakerBlock, 0, len(seg.Comments)+1)
	blocks = append(blocks, SpeakerBlock{Speaker: SpeakerNarrator, Text: p.CleanForTTS(seg.Post.Title)})

	speakers := map[string]struct{}{SpeakerNarrator: {}}
	for _, c := range seg.Comments {
		speaker := SpeakerReplier
		if c.ParentID == seg.Post.ID {
			speaker = SpeakerCommenter
		}
		speakers[speaker] = struct{}{}
		blocks = append(blocks, SpeakerBlock{Speaker: speaker, Text: p.CleanForTTS(c.Body)})
	}

	var words float64
	for _, b := range blocks {
		words += float64(len(strings.Fields(b.Text)))
	}

	return Narration{
		SegmentID:        seg.ID,
		Blocks:           blocks,
		Title:            seg.Post.Title,
		EngagementScore:  seg.Post.EngagementScore,
		DurationEstimate: words / wordsPerSecond,
		SpeakerCount:     len(speakers),
	}
}

// NarrateBatch narrates every segment in a sealed batch.
func (p *Processor) NarrateBatch(batch core.Batch) []Narration {
	out := make([]Narration, 0, len(batch.Segments))
	for _, seg := range batch.Segments {
		out = append(out, p.Narrate(seg))
	}
	return out
}
