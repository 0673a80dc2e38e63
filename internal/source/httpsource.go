package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/resilience"
)

// HTTPSource is a parametrized HTTP JSON lookup: the URL template is filled
// from the query context and the named response fields become the candidate.
// One instance per configured endpoint.
type HTTPSource struct {
	meta    Meta
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewHTTPSource creates an HTTPSource from registry config. The per-query
// timeout is imposed by the caller's context, so the embedded client carries
// no timeout of its own.
func NewHTTPSource(meta Meta, cfg HTTPConfig) *HTTPSource {
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1 // source queries are not retried by the pipeline
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries + 1
	}
	return &HTTPSource{
		meta:    meta,
		cfg:     cfg,
		client:  &http.Client{},
		limiter: limiter,
		retry:   retry,
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.meta.Name }

// Meta implements Source.
func (s *HTTPSource) Meta() Meta { return s.meta }

// Query implements Source.
func (s *HTTPSource) Query(ctx context.Context, qc QueryContext) (*SourceResult, error) {
	reqURL := expandTemplate(s.cfg.URL, qc)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
	}

	body, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		return s.fetch(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}

	cand, ok := s.extract(body)
	if !ok {
		zap.L().Debug("http source: no provider in response",
			zap.String("source", s.meta.Name),
		)
		return nil, nil
	}

	res := s.meta.NewResult(cand)
	res.Raw = body
	return res, nil
}

func (s *HTTPSource) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: build request", s.meta.Name)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(
			eris.Wrapf(err, "source %s: fetch", s.meta.Name), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.NewTransientError(
			eris.Wrapf(err, "source %s: read body", s.meta.Name), 0)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("source %s: status %d", s.meta.Name, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, resilience.NewPermanentError(err)
	}
	return body, nil
}

// extract pulls the candidate fields out of the response body. Returns
// ok=false when the configured provider field is missing or empty, which is
// a no-match, not an error.
func (s *HTTPSource) extract(body []byte) (Candidate, bool) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Candidate{}, false
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return Candidate{}, false
	}

	if s.cfg.ResultsField != "" {
		arr, ok := lookupPath(obj, s.cfg.ResultsField).([]any)
		if !ok || len(arr) == 0 {
			return Candidate{}, false
		}
		obj, ok = arr[0].(map[string]any)
		if !ok {
			return Candidate{}, false
		}
	}

	name := stringAt(obj, s.cfg.ProviderField)
	if strings.TrimSpace(name) == "" {
		return Candidate{}, false
	}

	return Candidate{
		Name:    name,
		Phone:   stringAt(obj, s.cfg.PhoneField),
		Website: stringAt(obj, s.cfg.WebsiteField),
	}, true
}

// expandTemplate substitutes {placeholder} tokens with URL-escaped context
// values.
func expandTemplate(tmpl string, qc QueryContext) string {
	r := strings.NewReplacer(
		"{lat}", url.QueryEscape(trimFloat(qc.Latitude)),
		"{lon}", url.QueryEscape(trimFloat(qc.Longitude)),
		"{state}", url.QueryEscape(qc.State),
		"{county}", url.QueryEscape(qc.County),
		"{city}", url.QueryEscape(qc.City),
		"{zip}", url.QueryEscape(qc.ZIP),
		"{address}", url.QueryEscape(qc.Address),
	)
	return r.Replace(tmpl)
}

func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", f), "0"), ".")
}

// lookupPath walks a dotted field path through nested JSON objects.
func lookupPath(obj map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = obj
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func stringAt(obj map[string]any, path string) string {
	if path == "" {
		return ""
	}
	switch v := lookupPath(obj, path).(type) {
	case string:
		return v
	case float64:
		return trimFloat(v)
	default:
		return ""
	}
}
