package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/cppla/pawtrail/models"
	"github.com/cppla/pawtrail/utils"
)

// POICandidate is a nearby place returned by a place-search provider.
type POICandidate struct {
	PlaceID  string            `json:"place_id"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Location models.RoutePoint `json:"location"`
}

// POIFinder looks up places around a point.
type POIFinder interface {
	FindNearby(ctx context.Context, lat, lng, radiusMeters float64) ([]POICandidate, error)
}

// POICache stores lookup results by key with a TTL.
type POICache interface {
	GetJSON(ctx context.Context, key string, v interface{}) bool
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration)
}

// HTTPPOIConfig configures an HTTPPOIFinder.
type HTTPPOIConfig struct {
	BaseURL           string
	APIKey            string
	ClientID          string
	ClientSecret      string
	TokenURL          string
	Categories        []string
	RequestsPerSecond int
}

// HTTPPOIFinder queries a place-search endpoint of the form
// GET {BaseURL}?lat=..&lng=..&radius=..&types=a,b returning
// {"results":[{"place_id","name","type","lat","lng"}]}.
type HTTPPOIFinder struct {
	baseURL    string
	apiKey     string
	categories []string
	client     *http.Client
	limiter    *rate.Limiter
}

// NewHTTPPOIFinder builds a finder. When client credentials are configured
// requests carry an OAuth2 bearer token.
func NewHTTPPOIFinder(cfg HTTPPOIConfig) *HTTPPOIFinder {
	client := &http.Client{Timeout: 10 * time.Second}
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(context.Background())
		client.Timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &HTTPPOIFinder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		categories: cfg.Categories,
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
	}
}

type placeResponse struct {
	Results []struct {
		PlaceID string  `json:"place_id"`
		Name    string  `json:"name"`
		Type    string  `json:"type"`
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
	} `json:"results"`
}

// FindNearby implements POIFinder.
func (f *HTTPPOIFinder) FindNearby(ctx context.Context, lat, lng, radiusMeters float64) ([]POICandidate, error) {
	if f.baseURL == "" {
		return nil, nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(int(radiusMeters)))
	if len(f.categories) > 0 {
		q.Set("types", strings.Join(f.categories, ","))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if f.apiKey != "" {
		req.Header.Set("X-Api-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: place search status %d", ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var body placeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode place search: %v", ErrCollaboratorUnavailable, err)
	}
	out := make([]POICandidate, 0, len(body.Results))
	for _, r := range body.Results {
		if r.PlaceID == "" {
			continue
		}
		out = append(out, POICandidate{
			PlaceID:  r.PlaceID,
			Name:     utils.StripTags(r.Name),
			Type:     r.Type,
			Location: models.RoutePoint{Lat: r.Lat, Lng: r.Lng},
		})
	}
	return out, nil
}

// CachedPOIFinder memoizes lookups under a coarse location+radius+category key.
type CachedPOIFinder struct {
	next     POIFinder
	cache    POICache
	ttl      time.Duration
	category string
}

// NewCachedPOIFinder wraps next with cache.
func NewCachedPOIFinder(next POIFinder, cache POICache, ttl time.Duration, categories []string) *CachedPOIFinder {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPOIFinder{next: next, cache: cache, ttl: ttl, category: strings.Join(categories, ",")}
}

// CacheKey rounds the query point to roughly 100 m cells.
func (c *CachedPOIFinder) CacheKey(lat, lng, radiusMeters float64) string {
	return fmt.Sprintf("cache:poi:nearby:%.3f:%.3f:r%d:%s", lat, lng, int(radiusMeters), c.category)
}

// FindNearby implements POIFinder. Only successful lookups are cached.
func (c *CachedPOIFinder) FindNearby(ctx context.Context, lat, lng, radiusMeters float64) ([]POICandidate, error) {
	key := c.CacheKey(lat, lng, radiusMeters)
	var cached []POICandidate
	if c.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	res, err := c.next.FindNearby(ctx, lat, lng, radiusMeters)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []POICandidate{}
	}
	c.cache.SetJSON(ctx, key, res, c.ttl)
	return res, nil
}
