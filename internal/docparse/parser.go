package docparse

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// ParseError reports a per-file parse failure. Callers skip the file and
// continue; a single malformed document must never abort an indexing run.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CodeBlock is a fenced code block extracted from a section.
type CodeBlock struct {
	Language string
	Code     string
}

// Section is a heading-bounded region of a document.
type Section struct {
	Heading     string
	Level       int
	HeadingPath []string // ancestor headings plus this section's own heading
	Content     string   // section body, code fences included
	CodeBlocks  []CodeBlock
}

// Document is the parsed representation of one markdown source file.
type Document struct {
	SourcePath  string
	Title       string
	FrontMatter map[string]any
	Sections    []Section
}

var frontMatterDelim = []byte("---")

// Parser extracts front matter, heading hierarchy and code blocks from
// markdown documents.
type Parser struct {
	md goldmark.Markdown
}

// NewParser creates a markdown parser.
func NewParser() *Parser {
	return &Parser{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Parse parses raw markdown into a Document. The path is metadata only; the
// parser never touches the file system.
func (p *Parser) Parse(path string, raw []byte) (*Document, error) {
	meta, body, err := splitFrontMatter(raw)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	doc := &Document{
		SourcePath:  path,
		FrontMatter: meta,
	}

	root := p.md.Parser().Parse(text.NewReader(body))
	sections := p.extractSections(root, body)

	doc.Title = deriveTitle(meta, sections, path)

	// Prose before the first heading keeps the document title as its heading
	// so it stays retrievable.
	if len(sections) > 0 && sections[0].Heading == "" {
		sections[0].Heading = doc.Title
		sections[0].Level = 1
		sections[0].HeadingPath = []string{doc.Title}
	}

	doc.Sections = sections
	return doc, nil
}

// splitFrontMatter strips a leading YAML front matter block. An opening
// delimiter without a closing one is a parse failure.
func splitFrontMatter(raw []byte) (map[string]any, []byte, error) {
	trimmed := bytes.TrimPrefix(raw, []byte("\ufeff"))
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return nil, raw, nil
	}
	rest := trimmed[len(frontMatterDelim):]
	if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' {
		// A line like "---foo" is a thematic break candidate, not front matter.
		return nil, raw, nil
	}

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated front matter delimiter")
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if idx := bytes.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	} else {
		body = nil
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal(block, &meta); err != nil {
		return nil, nil, fmt.Errorf("invalid front matter: %w", err)
	}
	return meta, body, nil
}

// extractSections walks the top-level blocks and groups them by heading,
// maintaining a level stack for the heading hierarchy.
func (p *Parser) extractSections(root ast.Node, source []byte) []Section {
	var sections []Section
	var current *Section
	var content strings.Builder
	stack := []headingInfo{}

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(content.String())
		if current.Content != "" || len(current.CodeBlocks) > 0 {
			sections = append(sections, *current)
		}
		content.Reset()
		current = nil
	}

	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		if heading, ok := child.(*ast.Heading); ok {
			flush()

			level := heading.Level
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			title := nodeText(heading, source)
			stack = append(stack, headingInfo{level: level, text: title})

			path := make([]string, len(stack))
			for i, h := range stack {
				path[i] = h.text
			}
			current = &Section{
				Heading:     title,
				Level:       level,
				HeadingPath: path,
			}
			continue
		}

		if current == nil {
			// Preamble before the first heading.
			current = &Section{HeadingPath: []string{}}
		}

		if fence, ok := child.(*ast.FencedCodeBlock); ok {
			lang := "text"
			if l := fence.Language(source); len(l) > 0 {
				lang = string(l)
			}
			code := blockLines(fence, source)
			current.CodeBlocks = append(current.CodeBlocks, CodeBlock{
				Language: lang,
				Code:     strings.TrimRight(code, "\n"),
			})
			if content.Len() > 0 {
				content.WriteString("\n\n")
			}
			content.WriteString("```" + lang + "\n" + code + "```")
			continue
		}

		raw := rawSpan(child, source)
		if raw == "" {
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(raw)
	}
	flush()

	return sections
}

type headingInfo struct {
	level int
	text  string
}

// deriveTitle picks the document title: front matter "title", then the first
// level-1 heading, then the filename with words capitalized.
func deriveTitle(meta map[string]any, sections []Section, path string) string {
	if t, ok := meta["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	for _, s := range sections {
		if s.Level == 1 && s.Heading != "" {
			return s.Heading
		}
	}
	for _, s := range sections {
		if s.Heading != "" {
			return s.Heading
		}
	}
	return titleFromFilename(path)
}

// titleFromFilename derives a title from the file name by dropping the
// extension and capitalizing words.
func titleFromFilename(path string) string {
	name := filepath.Base(path)
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)

	words := strings.Fields(name)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// nodeText extracts the plain text of a node and its children.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// blockLines concatenates the source lines owned by a block node.
func blockLines(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}
	return b.String()
}

// rawSpan returns the raw source covered by a block node, including the
// lines of nested children (lists, blockquotes).
func rawSpan(n ast.Node, source []byte) string {
	start, stop := -1, -1
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		// Lines() panics on inline nodes.
		if node.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if start < 0 || seg.Start < start {
				start = seg.Start
			}
			if seg.Stop > stop {
				stop = seg.Stop
			}
		}
		return ast.WalkContinue, nil
	})
	if start < 0 || stop <= start {
		return ""
	}
	return strings.TrimSpace(string(source[start:stop]))
}
