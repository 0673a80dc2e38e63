package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	meta Meta
}

func (s *staticSource) Name() string { return s.meta.Name }
func (s *staticSource) Meta() Meta   { return s.meta }
func (s *staticSource) Query(context.Context, QueryContext) (*SourceResult, error) {
	return nil, nil
}

func static(name string, conf float64, cats []Category, states ...string) *staticSource {
	return &staticSource{meta: Meta{
		Name:           name,
		Categories:     cats,
		States:         states,
		BaseConfidence: conf,
		Precision:      PrecisionRegion,
	}}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(static("a", 70, []Category{CategoryElectric}))

	assert.NotNil(t, reg.Get("a"))
	assert.Nil(t, reg.Get("missing"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register(static("a", 70, []Category{CategoryElectric}))
	reg.Register(static("a", 90, []Category{CategoryElectric}))

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 90.0, reg.Get("a").Meta().BaseConfidence)
}

func TestRegistry_ForFiltersByCategoryAndState(t *testing.T) {
	reg := NewRegistry()
	reg.Register(static("national-electric", 70, []Category{CategoryElectric}))
	reg.Register(static("nc-electric", 85, []Category{CategoryElectric}, "NC"))
	reg.Register(static("nc-gas", 75, []Category{CategoryGas}, "NC"))

	nc := reg.For(CategoryElectric, "NC")
	require.Len(t, nc, 2)
	assert.Equal(t, "nc-electric", nc[0].Name())
	assert.Equal(t, "national-electric", nc[1].Name())

	sc := reg.For(CategoryElectric, "SC")
	require.Len(t, sc, 1)
	assert.Equal(t, "national-electric", sc[0].Name())

	assert.Empty(t, reg.For(CategoryWater, "NC"))
}

func TestRegistry_ForOrdering(t *testing.T) {
	reg := NewRegistry()
	reg.Register(static("b", 70, []Category{CategoryElectric}))
	reg.Register(static("a", 70, []Category{CategoryElectric}))
	reg.Register(static("c", 90, []Category{CategoryElectric}))

	got := reg.For(CategoryElectric, "NC")
	require.Len(t, got, 3)
	// Confidence descending, then name ascending.
	assert.Equal(t, "c", got[0].Name())
	assert.Equal(t, "a", got[1].Name())
	assert.Equal(t, "b", got[2].Name())
}

func TestRegistry_List(t *testing.T) {
	reg := NewRegistry()
	reg.Register(static("zeta", 70, []Category{CategoryElectric}))
	reg.Register(static("alpha", 70, []Category{CategoryGas}))

	assert.Equal(t, []string{"alpha", "zeta"}, reg.List())
}

func TestMeta_AppliesTo(t *testing.T) {
	nationwide := Meta{Categories: []Category{CategoryElectric}}
	assert.True(t, nationwide.AppliesTo(CategoryElectric, "NC"))
	assert.True(t, nationwide.AppliesTo(CategoryElectric, ""))
	assert.False(t, nationwide.AppliesTo(CategoryGas, "NC"))

	scoped := Meta{Categories: []Category{CategoryElectric}, States: []string{"NC", "SC"}}
	assert.True(t, scoped.AppliesTo(CategoryElectric, "SC"))
	assert.False(t, scoped.AppliesTo(CategoryElectric, "GA"))
}
