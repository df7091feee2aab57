package llm

import (
	"time"

	"github.com/deskrecall/deskrecalld/internal/analysis"
	"github.com/deskrecall/deskrecalld/internal/store"
)

// wireSummary is the JSON shape providers are asked to emit for the combined
// analyze_frames + generate_timeline round-trip — snake_case per the schema
// description in the system prompt, distinct from store.ActivityTag's
// Go-field-cased JSON (used only for the Store's own internal round-trip
// through tags_json).
type wireSummary struct {
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	DetailedSummary string     `json:"detailed_summary"`
	Tags            []wireTag  `json:"tags"`
	TimelineCards   []wireCard `json:"timeline_cards"`
}

type wireTag struct {
	Category          string   `json:"category"`
	Confidence        float64  `json:"confidence"`
	Keywords          []string `json:"keywords"`
	ProductivityScore *int     `json:"productivity_score"`
	FocusScore        *int     `json:"focus_score"`
}

// wireCard is one timeline_cards entry. Offsets are seconds from the
// session's start_time, not absolute timestamps: the provider only ever
// sees sampled frames, never wall-clock session bounds, so asking for an
// offset keeps the schema self-contained and lets toSessionSummary resolve
// it against the session record the Orchestrator already holds.
type wireCard struct {
	StartOffsetSeconds int      `json:"start_offset_seconds"`
	EndOffsetSeconds   int      `json:"end_offset_seconds"`
	Category           string   `json:"category"`
	Title              string   `json:"title"`
	Summary            string   `json:"summary"`
	DetailedSummary    string   `json:"detailed_summary"`
	Distractions       []string `json:"distractions,omitempty"`
	Apps               []string `json:"apps,omitempty"`
}

func (w wireSummary) toSessionSummary(sessionStart time.Time) SessionSummary {
	tags := make([]store.ActivityTag, 0, len(w.Tags))
	for _, t := range w.Tags {
		keywords := t.Keywords
		if t.Category != "" {
			keywords = append([]string{t.Category}, keywords...)
		}
		tags = append(tags, store.ActivityTag{
			Category:          analysis.MapCategory(t.Category),
			Confidence:        t.Confidence,
			Keywords:          keywords,
			ProductivityScore: t.ProductivityScore,
			FocusScore:        t.FocusScore,
		})
	}
	cards := make([]store.TimelineCard, 0, len(w.TimelineCards))
	for _, c := range w.TimelineCards {
		cards = append(cards, store.TimelineCard{
			Start:           sessionStart.Add(time.Duration(c.StartOffsetSeconds) * time.Second),
			End:             sessionStart.Add(time.Duration(c.EndOffsetSeconds) * time.Second),
			Category:        analysis.MapCategory(c.Category),
			Title:           c.Title,
			Summary:         c.Summary,
			DetailedSummary: c.DetailedSummary,
			Distractions:    c.Distractions,
			Apps:            c.Apps,
		})
	}
	return SessionSummary{
		Title:           w.Title,
		Summary:         w.Summary,
		DetailedSummary: w.DetailedSummary,
		Tags:            tags,
		TimelineCards:   cards,
	}
}
