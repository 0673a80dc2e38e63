package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/resilience"
)

const (
	censusBaseURL   = "https://geocoding.geo.census.gov/geocoder/geographies/onelineaddress"
	censusBenchmark = "Public_AR_Current"
	censusVintage   = "Current_Current"
)

// Census geocodes through the Census Bureau's free geocoder. The geographies
// endpoint returns the containing county alongside the coordinates, which is
// what the region-keyed sources need.
type Census struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	cache   *cache.Cache
}

// CensusOption configures the Census geocoder.
type CensusOption func(*Census)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) CensusOption {
	return func(c *Census) { c.client = hc }
}

// WithBaseURL overrides the geocoder endpoint, for tests.
func WithBaseURL(u string) CensusOption {
	return func(c *Census) { c.baseURL = u }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) CensusOption {
	return func(c *Census) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
		}
	}
}

// WithCacheTTL sets how long geocode results (matches and non-matches both)
// are cached in memory. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) CensusOption {
	return func(c *Census) {
		if ttl > 0 {
			c.cache = cache.New(ttl, 2*ttl)
		} else {
			c.cache = nil
		}
	}
}

// NewCensus creates a Census geocoder. Transient failures are retried once;
// the resolution pipeline treats a failed geocode as "no coordinates", so the
// lookup still proceeds on whatever geography the caller supplied.
func NewCensus(opts ...CensusOption) *Census {
	c := &Census{
		baseURL: censusBaseURL,
		client:  &http.Client{},
		limiter: rate.NewLimiter(10, 10),
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 250 * time.Millisecond,
			OnRetry:        resilience.RetryLogger("census", "geocode"),
		},
		cache: cache.New(24*time.Hour, time.Hour),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locate implements Geocoder.
func (c *Census) Locate(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return &Location{}, nil
	}

	key := strings.ToLower(address)
	if c.cache != nil {
		if hit, ok := c.cache.Get(key); ok {
			loc := hit.(Location)
			return &loc, nil
		}
	}

	loc, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Location, error) {
		return c.fetch(ctx, address)
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetDefault(key, *loc)
	}
	zap.L().Debug("geocoded address",
		zap.Bool("matched", loc.Matched),
		zap.String("state", loc.State),
		zap.String("county", loc.County),
	)
	return loc, nil
}

func (c *Census) fetch(ctx context.Context, address string) (*Location, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
	}

	params := url.Values{
		"address":   {address},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"layers":    {"Counties"},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: read body"), 0)
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: census status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, resilience.NewPermanentError(err)
	}

	var parsed censusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(parsed.Result.AddressMatches) == 0 {
		return &Location{}, nil
	}

	m := parsed.Result.AddressMatches[0]
	loc := &Location{
		Latitude:       m.Coordinates.Y,
		Longitude:      m.Coordinates.X,
		MatchedAddress: m.MatchedAddress,
		State:          m.AddressComponents.State,
		City:           m.AddressComponents.City,
		ZIP:            m.AddressComponents.ZIP,
		Matched:        true,
	}
	if counties := m.Geographies["Counties"]; len(counties) > 0 {
		loc.County = counties[0].BaseName
	}
	return loc, nil
}

type censusResponse struct {
	Result struct {
		AddressMatches []censusMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusMatch struct {
	MatchedAddress string `json:"matchedAddress"`
	Coordinates    struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	AddressComponents struct {
		State string `json:"state"`
		City  string `json:"city"`
		ZIP   string `json:"zip"`
	} `json:"addressComponents"`
	Geographies map[string][]censusGeography `json:"geographies"`
}

type censusGeography struct {
	BaseName string `json:"BASENAME"`
}
