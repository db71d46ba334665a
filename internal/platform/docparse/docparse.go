// Package docparse turns an ingested document's raw bytes into the plain
// text plus section-heading path the Chunker stage expects, branching on
// source kind. PDF ingestion is an external contract: callers are expected
// to run PDF bytes through an out-of-process extractor and hand docparse
// the resulting text, the same way the original pipeline treated PDF
// extraction as outside the graph-build boundary.
package docparse

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "codeberg.org/readeck/go-readability/v2"
)

// Section is one heading-delimited span of a parsed document, carrying the
// heading path that becomes a Chunk's SectionPath provenance field.
type Section struct {
	Path []string
	Text string
}

// Parsed is the normalized output of parsing any supported source kind.
type Parsed struct {
	Title    string
	Sections []Section
}

// Parse dispatches on sourceKind: "text", "markdown", "html". Any other
// value (including "pdf") is rejected — PDF text must be extracted
// upstream and submitted as "text" or "markdown".
func Parse(sourceKind string, raw []byte, sourceURL string) (*Parsed, error) {
	switch sourceKind {
	case "text":
		return parsePlainText(string(raw)), nil
	case "markdown":
		return parseMarkdown(string(raw)), nil
	case "html":
		return parseHTML(raw, sourceURL)
	default:
		return nil, fmt.Errorf("docparse: unsupported source kind %q (pdf text must be pre-extracted)", sourceKind)
	}
}

func parsePlainText(text string) *Parsed {
	return &Parsed{
		Sections: []Section{{Path: nil, Text: strings.TrimSpace(text)}},
	}
}

// parseMarkdown splits on ATX headings (#..######) to build a heading path
// per section; it does not attempt full CommonMark parsing since the
// chunker only needs text plus a heading trail.
func parseMarkdown(text string) *Parsed {
	lines := strings.Split(text, "\n")
	var sections []Section
	var stack []string
	var title string
	var body strings.Builder

	flush := func() {
		trimmed := strings.TrimSpace(body.String())
		if trimmed != "" {
			sections = append(sections, Section{Path: append([]string{}, stack...), Text: trimmed})
		}
		body.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		level := headingLevel(trimmed)
		if level == 0 {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush()
		heading := strings.TrimSpace(trimmed[level:])
		if title == "" {
			title = heading
		}
		if level > len(stack) {
			for len(stack) < level-1 {
				stack = append(stack, "")
			}
			stack = append(stack, heading)
		} else {
			stack = append(stack[:level-1], heading)
		}
	}
	flush()

	return &Parsed{Title: title, Sections: sections}
}

func headingLevel(line string) int {
	n := 0
	for n < len(line) && n < 6 && line[n] == '#' {
		n++
	}
	if n > 0 && n < len(line) && line[n] == ' ' {
		return n
	}
	return 0
}

// parseHTML converts the full document to markdown (preserving heading
// structure for SectionPath), then separately runs readability's
// boilerplate-stripping extraction purely to recover a clean title:
// html-to-markdown handles body conversion, readability handles title.
func parseHTML(raw []byte, sourceURL string) (*Parsed, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	markdown, err := converter.ConvertString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("docparse: html to markdown: %w", err)
	}

	parsed := parseMarkdown(markdown)

	if sourceURL != "" {
		if parsedURL, uerr := url.Parse(sourceURL); uerr == nil {
			if article, rerr := readability.FromReader(strings.NewReader(string(raw)), parsedURL); rerr == nil && article.Title() != "" {
				parsed.Title = article.Title()
			}
		}
	}

	return parsed, nil
}
