package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	geojson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

// BoundarySource answers lookups by point-in-polygon tests against utility
// territory boundaries loaded from a GeoJSON or shapefile. Territories are
// loaded once at startup and read-only afterward.
type BoundarySource struct {
	meta        Meta
	territories []territory
}

type territory struct {
	provider string
	phone    string
	website  string
	// rings holds flat XY coordinate rings; the first ring of each polygon
	// is the exterior, the rest are holes.
	polygons []polygonRings
}

type polygonRings struct {
	exterior []float64
	holes    [][]float64
}

// LoadBoundarySource reads territory polygons from cfg.Path. The format is
// chosen by extension: .shp loads a shapefile, everything else is parsed as
// GeoJSON.
func LoadBoundarySource(meta Meta, cfg BoundaryConfig) (*BoundarySource, error) {
	if cfg.ProviderProperty == "" {
		return nil, eris.Errorf("source %s: boundary provider_property required", meta.Name)
	}

	var (
		terrs []territory
		err   error
	)
	if strings.EqualFold(filepath.Ext(cfg.Path), ".shp") {
		terrs, err = loadShapefile(cfg)
	} else {
		terrs, err = loadGeoJSON(cfg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: load boundaries", meta.Name)
	}
	if len(terrs) == 0 {
		return nil, eris.Errorf("source %s: no territories in %s", meta.Name, cfg.Path)
	}

	return &BoundarySource{meta: meta, territories: terrs}, nil
}

// Name implements Source.
func (s *BoundarySource) Name() string { return s.meta.Name }

// Meta implements Source.
func (s *BoundarySource) Meta() Meta { return s.meta }

// Query implements Source. Contexts without coordinates cannot be answered
// by a boundary source; that is a no-match, not an error.
func (s *BoundarySource) Query(_ context.Context, qc QueryContext) (*SourceResult, error) {
	if !qc.HasPoint() {
		return nil, nil
	}

	pt := geom.Coord{qc.Longitude, qc.Latitude}
	for i := range s.territories {
		t := &s.territories[i]
		if !t.contains(pt) {
			continue
		}
		return s.meta.NewResult(Candidate{
			Name:    t.provider,
			Phone:   t.phone,
			Website: t.website,
		}), nil
	}
	return nil, nil
}

func (t *territory) contains(pt geom.Coord) bool {
	for _, p := range t.polygons {
		if !xy.IsPointInRing(geom.XY, pt, p.exterior) {
			continue
		}
		inHole := false
		for _, h := range p.holes {
			if xy.IsPointInRing(geom.XY, pt, h) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

func loadGeoJSON(cfg BoundaryConfig) ([]territory, error) {
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, err
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "parse geojson")
	}

	var out []territory
	for _, f := range fc.Features {
		provider := propString(f.Properties, cfg.ProviderProperty)
		if provider == "" {
			continue
		}
		t := territory{
			provider: provider,
			phone:    propString(f.Properties, cfg.PhoneProperty),
			website:  propString(f.Properties, cfg.WebsiteProperty),
		}
		switch g := f.Geometry.(type) {
		case *geom.Polygon:
			t.polygons = append(t.polygons, polygonToRings(g))
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				t.polygons = append(t.polygons, polygonToRings(g.Polygon(i)))
			}
		default:
			continue
		}
		if len(t.polygons) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

func polygonToRings(p *geom.Polygon) polygonRings {
	var pr polygonRings
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i).FlatCoords()
		if i == 0 {
			pr.exterior = ring
		} else {
			pr.holes = append(pr.holes, ring)
		}
	}
	return pr
}

func loadShapefile(cfg BoundaryConfig) ([]territory, error) {
	r, err := shp.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck

	providerIdx, phoneIdx, websiteIdx := -1, -1, -1
	for i, f := range r.Fields() {
		switch {
		case strings.EqualFold(f.String(), cfg.ProviderProperty):
			providerIdx = i
		case cfg.PhoneProperty != "" && strings.EqualFold(f.String(), cfg.PhoneProperty):
			phoneIdx = i
		case cfg.WebsiteProperty != "" && strings.EqualFold(f.String(), cfg.WebsiteProperty):
			websiteIdx = i
		}
	}
	if providerIdx < 0 {
		return nil, eris.Errorf("shapefile has no %q attribute", cfg.ProviderProperty)
	}

	var out []territory
	for r.Next() {
		n, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		provider := strings.TrimSpace(r.ReadAttribute(n, providerIdx))
		if provider == "" {
			continue
		}
		t := territory{provider: provider}
		if phoneIdx >= 0 {
			t.phone = strings.TrimSpace(r.ReadAttribute(n, phoneIdx))
		}
		if websiteIdx >= 0 {
			t.website = strings.TrimSpace(r.ReadAttribute(n, websiteIdx))
		}
		// Shapefile ring orientation is not inspected; every part is
		// treated as a filled exterior ring.
		for _, ring := range shpRings(poly) {
			t.polygons = append(t.polygons, polygonRings{exterior: ring})
		}
		if len(t.polygons) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

// shpRings splits a shapefile polygon's point array into flat XY rings by
// part offsets.
func shpRings(p *shp.Polygon) [][]float64 {
	parts := append([]int32{}, p.Parts...)
	parts = append(parts, int32(len(p.Points)))

	var rings [][]float64
	for i := 0; i+1 < len(parts); i++ {
		ring := make([]float64, 0, (parts[i+1]-parts[i])*2)
		for _, pt := range p.Points[parts[i]:parts[i+1]] {
			ring = append(ring, pt.X, pt.Y)
		}
		if len(ring) >= 6 {
			rings = append(rings, ring)
		}
	}
	return rings
}

func propString(props map[string]any, key string) string {
	if key == "" || props == nil {
		return ""
	}
	if v, ok := props[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
