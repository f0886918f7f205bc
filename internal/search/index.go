// Package search provides a small, deterministic, concurrency-safe in-memory
// index used to rank puzzle listings against a free-text query.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for stop words and prefix matching
//   - Unicode-aware tokenization
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic ordering for ties
//
// Scoring is Jaccard similarity between the query token set Q and a document
// token set D: score = |Q ∩ D| / |Q ∪ D|. With prefix matching enabled a query
// token also hits any document token it prefixes ("raven" finds
// "ravensburger").
package search

import (
	"regexp"
	"sort"
	"strings"
)

// Document is one searchable item. Text is typically the concatenation of a
// listing's title, manufacturer, description and category names.
type Document struct {
	ID   string
	Text string
}

// Result is a ranked document ID with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	prefix    bool
}

func defaultConfig() config {
	return config{
		stopwords: nil,
		prefix:    true,
	}
}

// WithStopwords drops the given words from documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithPrefixMatch toggles prefix hits for query tokens (on by default).
func WithPrefixMatch(on bool) Option {
	return func(c *config) { c.prefix = on }
}

// DefaultStopwords is a short English list suited to listing text.
var DefaultStopwords = []string{"a", "an", "and", "the", "of", "in", "on", "for", "with", "to", "by"}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over docs. Documents without any token are skipped.
func NewIndex(docs []Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := tokenize(d.Text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: toks})
	}
	return &index{cfg: cfg, docs: out}
}

// TopK returns up to k best-matching documents. A non-positive k returns every
// match.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	buf := make([]Result, 0, len(i.docs))
	for _, d := range i.docs {
		over := i.overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(d.tokens) - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, Result{ID: d.id, Score: float64(over) / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		return buf[a].ID < buf[b].ID
	})

	if k > 0 && k < len(buf) {
		buf = buf[:k]
	}
	return buf
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

// overlap counts query tokens that hit the document, exactly or (when
// enabled) as a prefix of some document token.
func (i *index) overlap(q, d map[string]struct{}) int {
	n := 0
	for t := range q {
		if _, ok := d[t]; ok {
			n++
			continue
		}
		if !i.cfg.prefix || len([]rune(t)) < 3 {
			continue
		}
		for dt := range d {
			if strings.HasPrefix(dt, t) {
				n++
				break
			}
		}
	}
	return n
}
