package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nidhogg/clippy/internal/search"
)

// Enricher appends best-effort material to a finished suggestion body. On
// error the caller keeps the original body.
type Enricher interface {
	Enrich(ctx context.Context, body string) (string, error)
}

// Searcher looks up web resources for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

const (
	maxKeywords    = 5
	queryKeywords  = 3
	maxResources   = 3
	maxSnippetRune = 100
)

// ResourceEnricher appends a "Related Resources" list found by searching
// for keywords of the suggestion body.
type ResourceEnricher struct {
	searcher Searcher
}

// NewResourceEnricher creates a ResourceEnricher.
func NewResourceEnricher(s Searcher) *ResourceEnricher {
	return &ResourceEnricher{searcher: s}
}

// Enrich implements Enricher.
func (e *ResourceEnricher) Enrich(ctx context.Context, body string) (string, error) {
	keywords := ExtractKeywords(body)
	if len(keywords) == 0 {
		return body, nil
	}
	n := queryKeywords
	if len(keywords) < n {
		n = len(keywords)
	}
	query := strings.Join(keywords[:n], " ")

	results, err := e.searcher.Search(ctx, query, maxResources)
	if err != nil {
		return body, fmt.Errorf("search %q: %w", query, err)
	}
	if len(results) == 0 {
		return body, nil
	}
	if len(results) > maxResources {
		results = results[:maxResources]
	}
	return body + FormatResources(results), nil
}

// FormatResources renders results as a numbered markdown list.
func FormatResources(results []search.Result) string {
	var b strings.Builder
	b.WriteString("\n\n**Related Resources:**\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. [%s](%s)", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n   %s...", truncateRunes(r.Snippet, maxSnippetRune))
		}
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

var nonWordRe = regexp.MustCompile(`[^\w\s]`)

// ExtractKeywords lowercases text, strips punctuation and returns up to five
// distinct words longer than three characters that are not stopwords.
func ExtractKeywords(text string) []string {
	cleaned := nonWordRe.ReplaceAllString(strings.ToLower(text), " ")
	seen := make(map[string]bool)
	var result []string
	for _, w := range strings.Fields(cleaned) {
		if len(w) <= 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		result = append(result, w)
		if len(result) >= maxKeywords {
			break
		}
	}
	return result
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "is": true, "was": true, "are": true, "were": true,
	"has": true, "have": true, "had": true, "be": true, "been": true,
	"this": true, "that": true, "these": true, "those": true, "with": true,
	"from": true, "by": true, "of": true, "over": true, "not": true,
	"you": true, "all": true, "can": true, "her": true, "one": true,
	"our": true, "out": true, "they": true, "will": true, "what": true,
	"when": true, "make": true, "like": true, "just": true, "into": true,
	"than": true, "them": true, "some": true, "could": true, "would": true,
	"there": true, "your": true, "about": true, "which": true,
}
