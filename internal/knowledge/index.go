// Package knowledge retrieves literature excerpts that ground advice in
// published sources.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Article is a literature record as stored in the index.
type Article struct {
	PubMedID string   `json:"pubmed_id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Content  string   `json:"content"`
	Year     string   `json:"year"`
	Journal  string   `json:"journal"`
	Keywords []string `json:"keywords"`
}

// Excerpt is one retrieved passage with its relevance in [0, 1].
type Excerpt struct {
	PubMedID string  `json:"pubmed_id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Year     string  `json:"year"`
	Journal  string  `json:"journal"`
	Score    float64 `json:"relevance_score"`
}

// Index is a searchable article store.
type Index interface {
	Search(ctx context.Context, query string, limit int) ([]Excerpt, error)
	Upsert(ctx context.Context, articles []Article) error
}

// MemoryIndex scores articles by query-term overlap.
type MemoryIndex struct {
	mu       sync.RWMutex
	articles map[string]Article
}

func NewMemoryIndex(articles ...Article) *MemoryIndex {
	idx := &MemoryIndex{articles: map[string]Article{}}
	for _, a := range articles {
		idx.articles[a.PubMedID] = a
	}
	return idx
}

func (m *MemoryIndex) Upsert(_ context.Context, articles []Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range articles {
		if a.PubMedID == "" {
			continue
		}
		m.articles[a.PubMedID] = a
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, query string, limit int) ([]Excerpt, error) {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return []Excerpt{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Excerpt, 0)
	for _, a := range m.articles {
		words := map[string]bool{}
		for _, w := range tokenize(a.Title + " " + a.Content + " " + strings.Join(a.Keywords, " ")) {
			words[w] = true
		}
		matched := 0
		for _, t := range terms {
			if words[t] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		out = append(out, excerptOf(a, float64(matched)/float64(len(terms))))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PubMedID < out[j].PubMedID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func excerptOf(a Article, score float64) Excerpt {
	content := a.Content
	if content == "" {
		content = a.Title + ". " + a.Abstract
	}
	return Excerpt{
		PubMedID: a.PubMedID,
		Title:    a.Title,
		Content:  content,
		Year:     a.Year,
		Journal:  a.Journal,
		Score:    score,
	}
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "with": true, "i": true, "my": true, "have": true, "has": true, "is": true,
	"to": true, "since": true, "been": true, "it": true, "at": true, "or": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]bool{}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
