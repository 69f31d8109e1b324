package indexer

import (
	"strings"

	"docqa/internal/docparse"
)

const (
	// DefaultMaxUnitTokens targets embedding models with ~512-token windows.
	DefaultMaxUnitTokens = 450
	// DefaultSplitDepth bounds the heading levels that open a new unit.
	DefaultSplitDepth = 3
)

// Chunker turns parsed documents into token-bounded ContentUnits.
//
// Code blocks are emitted twice: once inline in their prose unit so the
// explanatory context stays searchable, and once standalone so bare code is
// findable on its own. Both carry the same heading path.
type Chunker struct {
	maxUnitTokens int
	splitDepth    int
}

// NewChunker creates a chunker. Non-positive arguments fall back to defaults.
func NewChunker(maxUnitTokens, splitDepth int) *Chunker {
	if maxUnitTokens <= 0 {
		maxUnitTokens = DefaultMaxUnitTokens
	}
	if splitDepth <= 0 {
		splitDepth = DefaultSplitDepth
	}
	return &Chunker{maxUnitTokens: maxUnitTokens, splitDepth: splitDepth}
}

// sectionGroup accumulates a split-boundary section plus any deeper
// subsections folded into it.
type sectionGroup struct {
	headingPath []string
	parts       []string
	codeBlocks  []docparse.CodeBlock
}

// ChunkDocument produces the ordered units for one document. UnitIndex is
// monotonically increasing across the whole document.
func (c *Chunker) ChunkDocument(doc *docparse.Document) []ContentUnit {
	var groups []*sectionGroup
	var current *sectionGroup

	for _, section := range doc.Sections {
		boundary := section.Level <= c.splitDepth
		if boundary || current == nil {
			current = &sectionGroup{headingPath: section.HeadingPath}
			groups = append(groups, current)
			if section.Content != "" {
				current.parts = append(current.parts, section.Content)
			}
		} else {
			// Deeper than the split depth: fold into the enclosing group,
			// keeping the subsection heading visible in the text.
			marker := strings.Repeat("#", section.Level) + " " + section.Heading
			if section.Content != "" {
				current.parts = append(current.parts, marker+"\n\n"+section.Content)
			} else {
				current.parts = append(current.parts, marker)
			}
		}
		current.codeBlocks = append(current.codeBlocks, section.CodeBlocks...)
	}

	var units []ContentUnit
	unitIndex := 0

	emit := func(text string, kind UnitKind, headingPath []string, language string) {
		units = append(units, ContentUnit{
			Text:        text,
			SourcePath:  doc.SourcePath,
			HeadingPath: headingPath,
			UnitIndex:   unitIndex,
			UnitKind:    kind,
			TokenCount:  CountTokens(text),
			Language:    language,
		})
		unitIndex++
	}

	for _, group := range groups {
		text := strings.TrimSpace(strings.Join(group.parts, "\n\n"))
		if text != "" {
			for _, piece := range c.splitText(text) {
				emit(piece, KindProseWithCode, group.headingPath, "")
			}
		}
		for _, block := range group.codeBlocks {
			for _, piece := range c.splitLines(block.Code) {
				emit(piece, KindCodeOnly, group.headingPath, block.Language)
			}
		}
	}

	return units
}

// splitText splits prose at paragraph boundaries so every piece fits the
// token bound. Paragraphs larger than the bound are hard-split.
func (c *Chunker) splitText(text string) []string {
	if CountTokens(text) <= c.maxUnitTokens {
		return []string{text}
	}

	var pieces []string
	var buf strings.Builder
	bufTokens := 0

	flush := func() {
		if buf.Len() > 0 {
			pieces = append(pieces, buf.String())
			buf.Reset()
			bufTokens = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		paraTokens := CountTokens(para)
		if paraTokens > c.maxUnitTokens {
			flush()
			pieces = append(pieces, c.hardSplit(para)...)
			continue
		}
		// The separator counts toward the bound too.
		sep := 0
		if buf.Len() > 0 {
			sep = 1
		}
		if bufTokens+sep+paraTokens > c.maxUnitTokens {
			flush()
			sep = 0
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
		bufTokens += paraTokens + sep
	}
	flush()

	return pieces
}

// splitLines splits code at line boundaries; used for code_only units so an
// oversized block still honors the token bound.
func (c *Chunker) splitLines(code string) []string {
	if CountTokens(code) <= c.maxUnitTokens {
		return []string{code}
	}

	var pieces []string
	var buf strings.Builder
	bufTokens := 0

	for _, line := range strings.Split(code, "\n") {
		lineTokens := CountTokens(line) + 1
		if bufTokens+lineTokens > c.maxUnitTokens && buf.Len() > 0 {
			pieces = append(pieces, buf.String())
			buf.Reset()
			bufTokens = 0
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
		bufTokens += lineTokens
	}
	if buf.Len() > 0 {
		pieces = append(pieces, buf.String())
	}

	return pieces
}

// hardSplit cuts a single oversized paragraph by rune count, preferring
// newline and sentence boundaries when one falls inside the window.
func (c *Chunker) hardSplit(text string) []string {
	maxRunes := c.maxUnitTokens * runesPerToken
	runes := []rune(text)

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + maxRunes
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}

		window := string(runes[start:end])
		cut := end
		if i := strings.LastIndex(window, "\n"); i > 0 {
			cut = start + len([]rune(window[:i+1]))
		} else if i := strings.LastIndex(window, ". "); i > 0 {
			cut = start + len([]rune(window[:i+2]))
		}

		pieces = append(pieces, strings.TrimSpace(string(runes[start:cut])))
		start = cut
	}

	return pieces
}
