package rag

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/contextutil"
	"docqa/internal/indexer"
	"docqa/internal/llm"
)

// NotCoveredAnswer is returned without a model call when retrieval finds
// nothing relevant.
const NotCoveredAnswer = "I couldn't find relevant information in the documentation to answer your question."

// defaultTemperature keeps answers factual and mostly deterministic.
const defaultTemperature = 0.3

const globalSystemPrompt = `You are a helpful assistant that answers questions about a technical documentation corpus.

Your task is to:
1. Answer the user's question based ONLY on the provided context sections
2. Be precise and cite specific sections when possible
3. If the context doesn't contain enough information to answer, say so clearly
4. Use code examples from the context when relevant
5. Format your answer in clear, readable markdown

Stay factual and grounded in the provided context. Never use knowledge that is not present in it.`

const selectionSystemPrompt = `You are a helpful assistant that answers questions about a specific text selection.

CRITICAL: Answer using ONLY the selected text provided. DO NOT use external knowledge.

Your task is to:
1. Answer the user's question based EXCLUSIVELY on the selected text
2. Do not reference or draw on any outside knowledge about the topic
3. Quote from the selection when helpful
4. Be concise and directly address the question

If the answer is not in the selected text, say "The selected text does not contain information to answer this question."`

// Composer assembles prompts, calls the chat service and derives citations.
type Composer struct {
	chat        llm.ChatCompleter
	temperature float64
	docsPrefix  string // stripped from source paths when building anchors
}

// NewComposer creates a composer. docsPrefix is the corpus directory prefix
// removed from anchor URLs (e.g. "docs/").
func NewComposer(chat llm.ChatCompleter, docsPrefix string) *Composer {
	return &Composer{
		chat:        chat,
		temperature: defaultTemperature,
		docsPrefix:  docsPrefix,
	}
}

// ComposeGlobal answers a question from retrieved units. With zero units it
// short-circuits to the fixed not-covered answer and never calls the model.
// Citations come from the units supplied to the model, de-duplicated by
// (source path, section title) - not from parsing the answer text.
func (c *Composer) ComposeGlobal(ctx context.Context, question string, history []llm.Message, units []indexer.ContentUnit) (QueryResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(units) == 0 {
		logger.InfoContext(ctx, "no units retrieved, returning not-covered answer")
		return QueryResult{
			AnswerText: NotCoveredAnswer,
			Citations:  []Citation{},
		}, nil
	}

	var b strings.Builder
	b.WriteString("Context from the documentation:\n\n")
	for i, unit := range units {
		label := unit.HeadingPathString()
		if label == "" {
			label = unit.SourcePath
		}
		fmt.Fprintf(&b, "[Context %d - %s from %s]\n%s\n\n", i+1, label, unit.SourcePath, unit.Text)
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answer the question based on the context provided above. If the context doesn't contain sufficient information, say so clearly.")

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: b.String()})

	answer, err := c.chat.Complete(ctx, globalSystemPrompt, messages, c.temperature)
	if err != nil {
		return QueryResult{}, err
	}

	result := QueryResult{
		AnswerText: answer,
		Citations:  c.deriveCitations(units),
		UnitsUsed:  len(units),
	}
	logger.InfoContext(ctx, "global answer composed", "units_used", result.UnitsUsed, "citations", len(result.Citations))
	return result, nil
}

// ComposeSelection answers a question strictly from the supplied selection
// units. The prompt-level isolation here is defense in depth on top of the
// retriever never touching the store; citations are always empty.
func (c *Composer) ComposeSelection(ctx context.Context, question string, units []indexer.ContentUnit) (QueryResult, error) {
	var b strings.Builder
	b.WriteString("Selected text:\n\n")
	for i, unit := range units {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(unit.Text)
	}
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answer the question based ONLY on the selected text above.")

	messages := []llm.Message{{Role: "user", Content: b.String()}}

	answer, err := c.chat.Complete(ctx, selectionSystemPrompt, messages, c.temperature)
	if err != nil {
		return QueryResult{}, err
	}

	return QueryResult{
		AnswerText: answer,
		Citations:  []Citation{},
		UnitsUsed:  len(units),
	}, nil
}

// deriveCitations collects the unique (source path, section title) pairs of
// the supplied units, in supply order.
func (c *Composer) deriveCitations(units []indexer.ContentUnit) []Citation {
	seen := make(map[string]bool)
	citations := make([]Citation, 0, len(units))

	for _, unit := range units {
		key := unit.SourcePath + "\x00" + unit.SectionTitle()
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, Citation{
			SectionTitle: unit.SectionTitle(),
			SourcePath:   unit.SourcePath,
			AnchorURL:    c.anchorURL(unit.SourcePath, unit.SectionTitle()),
		})
	}

	return citations
}

// anchorURL builds a site link for a source section: path without the docs
// prefix and markdown extension, plus a slugified heading fragment.
func (c *Composer) anchorURL(sourcePath, sectionTitle string) string {
	path := strings.TrimPrefix(sourcePath, c.docsPrefix)
	path = strings.TrimSuffix(path, ".mdx")
	path = strings.TrimSuffix(path, ".md")

	fragment := slugify(sectionTitle)
	if fragment == "" {
		return "/" + path
	}
	return "/" + path + "#" + fragment
}

// slugify lowercases a heading and keeps alphanumerics and hyphens, the way
// documentation sites build heading anchors.
func slugify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
