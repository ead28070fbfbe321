package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultSeedTerms covers the complaints the assistant sees most often.
var DefaultSeedTerms = []string{
	"headache", "migraine", "fever", "cough", "sore throat", "common cold",
	"influenza", "nausea", "diarrhea", "abdominal pain", "back pain",
	"fatigue", "insomnia", "allergic rhinitis", "skin rash", "urinary tract infection",
}

// SeedResult reports what a Seed run stored.
type SeedResult struct {
	Terms    int `json:"terms"`
	Articles int `json:"articles"`
	Failed   int `json:"failed"`
}

// Seed searches the literature one term at a time and upserts the results.
// A failing term is logged and skipped; Seed fails only when every term does.
func Seed(ctx context.Context, index Index, literature Literature, terms []string, logger zerolog.Logger) (SeedResult, error) {
	var res SeedResult
	var lastErr error
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Terms++

		articles, err := literature.Search(ctx, []string{term})
		if err == nil && len(articles) > 0 {
			err = index.Upsert(ctx, articles)
		}
		if err != nil {
			res.Failed++
			lastErr = err
			logger.Warn().Err(err).Str("term", term).Msg("seeding term failed")
			continue
		}
		res.Articles += len(articles)
		logger.Info().Str("term", term).Int("articles", len(articles)).Msg("term indexed")
	}
	if res.Terms > 0 && res.Failed == res.Terms {
		return res, fmt.Errorf("all %d seed terms failed: %w", res.Terms, lastErr)
	}
	return res, nil
}
