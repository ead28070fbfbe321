package knowledge

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"symptom-assistant-server/internal/config"
)

// Literature finds articles for a set of search terms.
type Literature interface {
	Search(ctx context.Context, terms []string) ([]Article, error)
}

// PubMed queries NCBI E-utilities: esearch for ids, then efetch for abstracts.
type PubMed struct {
	baseURL    string
	maxResults int
	http       *http.Client
}

func NewPubMed(cfg config.PubMedConfig) *PubMed {
	limit := cfg.MaxArticles
	if limit <= 0 {
		limit = 20
	}
	return &PubMed{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: limit,
		http:       &http.Client{Timeout: 20 * time.Second},
	}
}

func (p *PubMed) Search(ctx context.Context, terms []string) ([]Article, error) {
	var ids []string
	seen := map[string]bool{}
	var lastErr error
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		found, err := p.searchIDs(ctx, term+" treatment")
		if err != nil {
			lastErr = err
			continue
		}
		for _, id := range found {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return []Article{}, nil
	}
	return p.fetch(ctx, ids)
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (p *PubMed) searchIDs(ctx context.Context, term string) ([]string, error) {
	q := url.Values{
		"db":       {"pubmed"},
		"term":     {term},
		"retmax":   {strconv.Itoa(p.maxResults)},
		"retmode":  {"json"},
		"sort":     {"relevance"},
		"mindate":  {"2022"},
		"datetype": {"pdat"},
	}
	body, err := p.get(ctx, "esearch.fcgi", q)
	if err != nil {
		return nil, err
	}
	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode esearch: %w", err)
	}
	return resp.Result.IDList, nil
}

type pubmedArticleSet struct {
	Articles []struct {
		Citation struct {
			PMID    string `xml:"PMID"`
			Article struct {
				Title    string `xml:"ArticleTitle"`
				Abstract struct {
					Texts []struct {
						Label string `xml:"Label,attr"`
						Text  string `xml:",chardata"`
					} `xml:"AbstractText"`
				} `xml:"Abstract"`
				Journal struct {
					Title   string `xml:"Title"`
					PubYear string `xml:"JournalIssue>PubDate>Year"`
				} `xml:"Journal"`
			} `xml:"Article"`
			Keywords []string `xml:"KeywordList>Keyword"`
		} `xml:"MedlineCitation"`
	} `xml:"PubmedArticle"`
}

func (p *PubMed) fetch(ctx context.Context, ids []string) ([]Article, error) {
	const batch = 200
	articles := []Article{}
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		body, err := p.get(ctx, "efetch.fcgi", url.Values{
			"db":      {"pubmed"},
			"id":      {strings.Join(ids[start:end], ",")},
			"retmode": {"xml"},
			"rettype": {"abstract"},
		})
		if err != nil {
			return articles, err
		}
		parsed, err := parseArticles(body)
		if err != nil {
			return articles, err
		}
		articles = append(articles, parsed...)
	}
	return articles, nil
}

func parseArticles(body []byte) ([]Article, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode efetch: %w", err)
	}
	out := make([]Article, 0, len(set.Articles))
	for _, pa := range set.Articles {
		c := pa.Citation
		if c.PMID == "" || c.Article.Title == "" {
			continue
		}
		parts := make([]string, 0, len(c.Article.Abstract.Texts))
		for _, t := range c.Article.Abstract.Texts {
			text := strings.TrimSpace(t.Text)
			if t.Label != "" {
				text = t.Label + ": " + text
			}
			parts = append(parts, text)
		}
		abstract := strings.Join(parts, " ")
		if abstract == "" {
			abstract = "No abstract"
		}
		out = append(out, Article{
			PubMedID: c.PMID,
			Title:    c.Article.Title,
			Abstract: abstract,
			Content:  c.Article.Title + ". " + abstract,
			Year:     orUnknown(c.Article.Journal.PubYear),
			Journal:  orUnknown(c.Article.Journal.Title),
			Keywords: c.Keywords,
		})
	}
	return out, nil
}

func (p *PubMed) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	return body, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
