package indexer

import "strings"

// UnitKind classifies a ContentUnit.
type UnitKind string

const (
	// KindProseWithCode is a section body with any code fences kept inline.
	KindProseWithCode UnitKind = "prose_with_code"
	// KindCodeOnly is a standalone code block emitted alongside its prose unit.
	KindCodeOnly UnitKind = "code_only"
	// KindSelection wraps caller-supplied text in selection mode.
	KindSelection UnitKind = "selection"
)

// ContentUnit is a retrievable, token-bounded slice of a source document.
// Units are immutable once persisted; re-indexing recreates them.
type ContentUnit struct {
	Text        string
	SourcePath  string
	HeadingPath []string
	UnitIndex   int
	UnitKind    UnitKind
	TokenCount  int
	Language    string    // set for code_only units
	Embedding   []float32 // nil until the unit has been embedded
}

// SectionTitle returns the innermost heading of the unit, or empty.
func (u ContentUnit) SectionTitle() string {
	if len(u.HeadingPath) == 0 {
		return ""
	}
	return u.HeadingPath[len(u.HeadingPath)-1]
}

// HeadingPathString renders the heading path in "A > B > C" form for
// payload storage and prompt labels.
func (u ContentUnit) HeadingPathString() string {
	return strings.Join(u.HeadingPath, " > ")
}

// SplitHeadingPath is the inverse of HeadingPathString.
func SplitHeadingPath(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, " > ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// runesPerToken approximates tokens as runes/4, matching typical BPE density
// for English technical prose. Rounding up keeps the unit token bound
// conservative.
const runesPerToken = 4

// CountTokens returns a conservative token estimate for text.
func CountTokens(text string) int {
	runes := 0
	for range text {
		runes++
	}
	return (runes + runesPerToken - 1) / runesPerToken
}

// IndexSummary reports the outcome of one IndexAll run.
type IndexSummary struct {
	FilesProcessed int
	FilesSkipped   int
	UnitsProduced  int
}

// ReindexState tracks the lifecycle of a reindex run.
type ReindexState string

const (
	StateIdle     ReindexState = "idle"
	StateBuilding ReindexState = "building"
	StateSwapping ReindexState = "swapping"
	StateFailed   ReindexState = "failed"
)

// ReindexSummary reports the outcome of one Reindex run.
type ReindexSummary struct {
	Status          string  `json:"status"` // "completed" or "failed"
	FilesProcessed  int     `json:"files_processed"`
	FilesSkipped    int     `json:"files_skipped"`
	UnitsProduced   int     `json:"units_produced"`
	DurationSeconds float64 `json:"duration_seconds"`
	Collection      string  `json:"collection,omitempty"` // generation collection the alias points at
}
