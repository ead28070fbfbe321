// Package places recommends a provider specialty for a symptom report and
// finds matching providers nearby.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"symptom-assistant-server/internal/cache"
	"symptom-assistant-server/internal/config"
)

const (
	earthRadiusKM = 6371.0
	geocodeTTL    = 30 * 24 * time.Hour
	detailFields  = "formatted_phone_number,website,opening_hours,rating,user_ratings_total"
)

var (
	ErrNotConfigured    = errors.New("maps API key is not configured")
	ErrLocationNotFound = errors.New("location not found")
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Provider is a nearby practice enriched with place details.
type Provider struct {
	PlaceID      string   `json:"place_id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	TotalRatings *int     `json:"total_ratings,omitempty"`
	OpenNow      *bool    `json:"open_now,omitempty"`
	DistanceKM   float64  `json:"distance_km"`
	Types        []string `json:"types"`
	MapsURL      string   `json:"google_maps_url"`
}

// Directory searches for providers and resolves postal codes.
type Directory interface {
	Nearby(ctx context.Context, at Location, keyword string) ([]Provider, error)
	Geocode(ctx context.Context, zipcode string) (Location, error)
}

// GoogleClient talks to the Google Places and Geocoding web services.
// Geocoding results are cached when a cache is set.
type GoogleClient struct {
	apiKey     string
	baseURL    string
	radius     int
	maxResults int
	http       *http.Client
	cache      cache.Cache
	logger     zerolog.Logger
}

func NewGoogleClient(cfg config.MapsConfig, c cache.Cache, logger zerolog.Logger) *GoogleClient {
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 15000
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &GoogleClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		radius:     cfg.RadiusMeters,
		maxResults: cfg.MaxResults,
		http:       &http.Client{Timeout: 10 * time.Second},
		cache:      c,
		logger:     logger,
	}
}

func (g *GoogleClient) get(ctx context.Context, path string, query url.Values, v any) error {
	query.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/"+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build maps request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("maps %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("maps %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode maps %s: %w", path, err)
	}
	return nil
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type nearbyResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID  string   `json:"place_id"`
		Name     string   `json:"name"`
		Vicinity string   `json:"vicinity"`
		Types    []string `json:"types"`
		Geometry struct {
			Location latLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type detailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Phone        string   `json:"formatted_phone_number"`
		Website      string   `json:"website"`
		Rating       *float64 `json:"rating"`
		TotalRatings *int     `json:"user_ratings_total"`
		OpeningHours *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"result"`
}

// Nearby returns up to maxResults providers matching keyword, each enriched
// with its details. A failed detail lookup keeps the basic listing.
func (g *GoogleClient) Nearby(ctx context.Context, at Location, keyword string) ([]Provider, error) {
	if g.apiKey == "" {
		return nil, ErrNotConfigured
	}

	var found nearbyResponse
	err := g.get(ctx, "place/nearbysearch/json", url.Values{
		"location": {fmt.Sprintf("%f,%f", at.Latitude, at.Longitude)},
		"radius":   {fmt.Sprint(g.radius)},
		"type":     {"doctor"},
		"keyword":  {keyword},
	}, &found)
	if err != nil {
		return nil, err
	}
	switch found.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []Provider{}, nil
	default:
		return nil, fmt.Errorf("places search status %s", found.Status)
	}

	results := found.Results
	if len(results) > g.maxResults {
		results = results[:g.maxResults]
	}
	providers := make([]Provider, len(results))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, r := range results {
		providers[i] = Provider{
			PlaceID:    r.PlaceID,
			Name:       r.Name,
			Address:    r.Vicinity,
			Types:      r.Types,
			DistanceKM: math.Round(Haversine(at, Location{r.Geometry.Location.Lat, r.Geometry.Location.Lng})*10) / 10,
			MapsURL:    "https://www.google.com/maps/place/?q=place_id:" + r.PlaceID,
		}
		if providers[i].Types == nil {
			providers[i].Types = []string{}
		}
		i := i
		eg.Go(func() error {
			g.enrich(egCtx, &providers[i])
			return nil
		})
	}
	_ = eg.Wait()
	return providers, nil
}

func (g *GoogleClient) enrich(ctx context.Context, p *Provider) {
	var d detailsResponse
	err := g.get(ctx, "place/details/json", url.Values{
		"place_id": {p.PlaceID},
		"fields":   {detailFields},
	}, &d)
	if err != nil || d.Status != "OK" {
		g.logger.Warn().Err(err).Str("place_id", p.PlaceID).Str("status", d.Status).Msg("place details unavailable")
		return
	}
	p.Phone = d.Result.Phone
	p.Website = d.Result.Website
	p.Rating = d.Result.Rating
	p.TotalRatings = d.Result.TotalRatings
	if d.Result.OpeningHours != nil {
		p.OpenNow = d.Result.OpeningHours.OpenNow
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location latLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves a US postal code.
func (g *GoogleClient) Geocode(ctx context.Context, zipcode string) (Location, error) {
	zipcode = strings.TrimSpace(zipcode)
	if g.apiKey == "" {
		return Location{}, ErrNotConfigured
	}
	key := "geo:zip:" + zipcode
	if g.cache != nil {
		var loc Location
		if err := cache.GetJSON(ctx, g.cache, key, &loc); err == nil {
			return loc, nil
		}
	}

	var resp geocodeResponse
	if err := g.get(ctx, "geocode/json", url.Values{
		"address":    {zipcode},
		"components": {"country:US"},
	}, &resp); err != nil {
		return Location{}, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return Location{}, ErrLocationNotFound
	}
	loc := Location{resp.Results[0].Geometry.Location.Lat, resp.Results[0].Geometry.Location.Lng}

	if g.cache != nil {
		if err := cache.SetJSON(ctx, g.cache, key, loc, geocodeTTL); err != nil {
			g.logger.Warn().Err(err).Str("zipcode", zipcode).Msg("failed to cache geocode")
		}
	}
	return loc, nil
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
