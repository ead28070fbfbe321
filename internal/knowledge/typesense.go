package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"symptom-assistant-server/internal/config"
)

// CollectionName is the Typesense collection holding articles.
const CollectionName = "medical_knowledge"

// TypesenseIndex stores articles in Typesense and ranks with its text match score.
type TypesenseIndex struct {
	client *typesense.Client
}

func NewTypesenseIndex(cfg config.TypesenseConfig) *TypesenseIndex {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)
	return &TypesenseIndex{client: client}
}

// InitSchema creates the collection if it does not exist.
func (t *TypesenseIndex) InitSchema(ctx context.Context) error {
	if _, err := t.client.Collection(CollectionName).Retrieve(ctx); err == nil {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: CollectionName,
		Fields: []api.Field{
			{Name: "pubmed_id", Type: "string"},
			{Name: "title", Type: "string"},
			{Name: "content", Type: "string"},
			{Name: "journal", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "year", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "keywords", Type: "string[]", Optional: pointer.True()},
		},
	}
	if _, err := t.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("failed to create %s collection: %w", CollectionName, err)
	}
	return nil
}

func (t *TypesenseIndex) Upsert(ctx context.Context, articles []Article) error {
	for _, a := range articles {
		if a.PubMedID == "" {
			continue
		}
		content := a.Content
		if content == "" {
			content = a.Title + ". " + a.Abstract
		}
		keywords := a.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		document := map[string]interface{}{
			"id":        a.PubMedID,
			"pubmed_id": a.PubMedID,
			"title":     a.Title,
			"content":   content,
			"journal":   a.Journal,
			"year":      a.Year,
			"keywords":  keywords,
		}
		if _, err := t.client.Collection(CollectionName).Documents().Upsert(ctx, document); err != nil {
			return fmt.Errorf("failed to index article %s: %w", a.PubMedID, err)
		}
	}
	return nil
}

// Search normalises text match scores against the best hit, so the top
// result always scores 1.
func (t *TypesenseIndex) Search(ctx context.Context, query string, limit int) ([]Excerpt, error) {
	params := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("title,content,keywords"),
		PerPage: pointer.Int(limit),
	}
	result, err := t.client.Collection(CollectionName).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge: %w", err)
	}

	out := []Excerpt{}
	if result.Hits == nil {
		return out, nil
	}

	var best int64
	for _, hit := range *result.Hits {
		if hit.TextMatch != nil && *hit.TextMatch > best {
			best = *hit.TextMatch
		}
	}

	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document
		score := 0.0
		if hit.TextMatch != nil && best > 0 {
			score = float64(*hit.TextMatch) / float64(best)
		}
		out = append(out, Excerpt{
			PubMedID: stringField(doc, "pubmed_id"),
			Title:    stringField(doc, "title"),
			Content:  stringField(doc, "content"),
			Year:     stringField(doc, "year"),
			Journal:  stringField(doc, "journal"),
			Score:    score,
		})
	}
	return out, nil
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}
