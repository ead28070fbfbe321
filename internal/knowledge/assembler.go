package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/observability"
)

// Context is the knowledge handed to the advice prompt.
type Context struct {
	Excerpts []Excerpt `json:"excerpts"`
	// Source is "index" or "literature" depending on which pass filled it.
	Source string `json:"source"`
	// Insufficient is set when fewer than the minimum excerpts were found.
	Insufficient bool `json:"insufficient"`
}

// KeywordExtractor turns a patient description into search terms.
type KeywordExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// LLMKeywordExtractor asks the completion provider for a comma-separated term list.
type LLMKeywordExtractor struct {
	provider llm.Completer
}

func NewLLMKeywordExtractor(provider llm.Completer) *LLMKeywordExtractor {
	return &LLMKeywordExtractor{provider: provider}
}

func (e *LLMKeywordExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(`Extract the key medical symptoms and conditions from this patient description.
Return ONLY a comma-separated list of medical terms. Be concise and clinical.

PATIENT DESCRIPTION:
%q

MEDICAL KEYWORDS:`, text)

	out, err := e.provider.Complete(ctx, llm.Request{
		Purpose: "keywords",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a medical transcription assistant. Extract only medical symptoms and conditions."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Deterministic: true,
	})
	if err != nil {
		return nil, err
	}
	return parseKeywords(out), nil
}

func parseKeywords(out string) []string {
	out = strings.TrimSpace(out)
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	var terms []string
	for _, part := range strings.Split(out, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'.[]`)
		if part != "" {
			terms = append(terms, part)
		}
	}
	return terms
}

// Assembler retrieves excerpts, falling back to a literature search that
// enriches the index when it has too few hits.
type Assembler struct {
	index      Index
	literature Literature
	keywords   KeywordExtractor
	topK       int
	minHits    int
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

type AssemblerConfig struct {
	TopK    int
	MinHits int
}

func NewAssembler(index Index, literature Literature, keywords KeywordExtractor, cfg AssemblerConfig, metrics *observability.Metrics, logger zerolog.Logger) *Assembler {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MinHits <= 0 {
		cfg.MinHits = 2
	}
	return &Assembler{
		index:      index,
		literature: literature,
		keywords:   keywords,
		topK:       cfg.TopK,
		minHits:    cfg.MinHits,
		metrics:    metrics,
		logger:     logger,
	}
}

// Retrieve never fails; every failure is absorbed into Insufficient.
func (a *Assembler) Retrieve(ctx context.Context, symptoms string) Context {
	hits, err := a.index.Search(ctx, symptoms, a.topK)
	if err != nil {
		a.metrics.ContextFallback("knowledge", "search_failed")
		a.logger.Warn().Err(err).Msg("knowledge search failed")
	}
	if len(hits) >= a.minHits {
		return Context{Excerpts: hits, Source: "index"}
	}

	if a.literature == nil {
		return a.insufficient(hits)
	}

	terms := []string{symptoms}
	if a.keywords != nil {
		extracted, err := a.keywords.Extract(ctx, symptoms)
		if err != nil {
			a.metrics.ContextFallback("knowledge", "keywords_failed")
			a.logger.Warn().Err(err).Msg("keyword extraction failed, searching raw text")
		} else if len(extracted) > 0 {
			terms = extracted
		}
	}

	articles, err := a.literature.Search(ctx, terms)
	if err != nil {
		a.metrics.ContextFallback("knowledge", "literature_failed")
		a.logger.Warn().Err(err).Msg("literature search failed")
	}
	if len(articles) == 0 {
		return a.insufficient(hits)
	}
	if err := a.index.Upsert(ctx, articles); err != nil {
		a.metrics.ContextFallback("knowledge", "upsert_failed")
		a.logger.Warn().Err(err).Int("articles", len(articles)).Msg("failed to store literature")
		return a.insufficient(hits)
	}

	hits, err = a.index.Search(ctx, strings.Join(terms, " "), a.topK)
	if err != nil {
		a.logger.Warn().Err(err).Msg("knowledge re-query failed")
	}
	if len(hits) >= a.minHits {
		return Context{Excerpts: hits, Source: "literature"}
	}
	return a.insufficient(hits)
}

func (a *Assembler) insufficient(hits []Excerpt) Context {
	a.metrics.ContextFallback("knowledge", "insufficient")
	if hits == nil {
		hits = []Excerpt{}
	}
	return Context{Excerpts: hits, Insufficient: true}
}
