// Package arbiter is the client for the external reasoning service consulted
// when deterministic resolution cannot pick a clear winner among disagreeing
// utility data sources.
package arbiter

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Request enumerates the disputed candidates and their supporting sources.
type Request struct {
	Category       string  `json:"category"`
	ContextSummary string  `json:"context_summary"`
	Groups         []Group `json:"groups"`
}

// Group is one disputed candidate with the sources that voted for it.
type Group struct {
	CandidateName string       `json:"candidate_name"`
	Sources       []SourceVote `json:"sources"`
}

// SourceVote identifies one source backing a candidate.
type SourceVote struct {
	Name           string  `json:"name"`
	BaseConfidence float64 `json:"base_confidence"`
}

// Response is the arbitrator's structured answer.
type Response struct {
	SelectedCandidateName string  `json:"selected_candidate_name"`
	Confidence            float64 `json:"confidence"`
	Reasoning             string  `json:"reasoning"`
}

// Arbiter decides between disputed candidate groups. Implementations must
// return a Response whose SelectedCandidateName is one of the offered
// candidates; ValidateResponse enforces that contract on the caller side.
type Arbiter interface {
	Arbitrate(ctx context.Context, req Request) (*Response, error)
}

// ErrInvalidSelection is returned when the arbitrator picks a candidate that
// was not offered in the request.
var ErrInvalidSelection = eris.New("arbiter: selection not among offered candidates")

// ErrEmptyResponse is returned when the arbitrator produced no usable answer.
var ErrEmptyResponse = eris.New("arbiter: empty response")

// Offered returns the candidate names in the request, in order.
func (r Request) Offered() []string {
	out := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.CandidateName
	}
	return out
}

// ValidateResponse checks a Response against the offered candidates and
// clamps the confidence into [0,100]. The returned selection is the offered
// spelling, not the arbitrator's echo of it.
func ValidateResponse(resp *Response, offered []string) (*Response, error) {
	if resp == nil || strings.TrimSpace(resp.SelectedCandidateName) == "" {
		return nil, ErrEmptyResponse
	}

	selected := strings.TrimSpace(resp.SelectedCandidateName)
	matched := ""
	for _, name := range offered {
		if strings.EqualFold(selected, strings.TrimSpace(name)) {
			matched = name
			break
		}
	}
	if matched == "" {
		return nil, eris.Wrapf(ErrInvalidSelection, "got %q", selected)
	}

	out := *resp
	out.SelectedCandidateName = matched
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 100 {
		out.Confidence = 100
	}
	return &out, nil
}
