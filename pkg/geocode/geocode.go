// Package geocode resolves free-form addresses to coordinates and the
// administrative geography (state, county, ZIP) that region-scoped utility
// sources key on.
package geocode

import "context"

// Location is the geocoder's answer for one address.
type Location struct {
	Latitude       float64
	Longitude      float64
	MatchedAddress string
	State          string // two-letter abbreviation
	County         string
	City           string
	ZIP            string
	Matched        bool
}

// Geocoder turns an address into a Location. A non-match is (Location{
// Matched: false}, nil); errors are reserved for transport failures.
type Geocoder interface {
	Locate(ctx context.Context, address string) (*Location, error)
}
