package metadata

import (
	"testing"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCapabilitiesAreValid(t *testing.T) {
	caps := DefaultCapabilities()
	require.NoError(t, caps.Validate())
	assert.False(t, caps.BatchBind[CategoryIndexBuffer])
	assert.True(t, caps.BatchBind[CategoryTexture])
	assert.Equal(t, 1, caps.MaxSlots[CategoryIndexBuffer])
}

func TestCapabilitiesValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Capabilities)
	}{
		{"zero capacity", func(c *Capabilities) { c.MaxSlots[CategorySampler] = 0 }},
		{"above ceiling", func(c *Capabilities) { c.MaxSlots[CategoryTexture] = MaxCategorySlots + 1 }},
		{"two index buffers", func(c *Capabilities) { c.MaxSlots[CategoryIndexBuffer] = 2 }},
		{"odd page size", func(c *Capabilities) { c.SparsePageSize = 3 << 10 }},
		{"negative attributes", func(c *Capabilities) { c.MaxVertexAttributes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := DefaultCapabilities()
			tt.mutate(&caps)
			assert.ErrorIs(t, caps.Validate(), core.ErrInvalidCapabilities)
		})
	}

	caps := DefaultCapabilities()
	caps.SparseBuffer = false
	caps.SparsePageSize = 0
	assert.NoError(t, caps.Validate())
}

func TestCapabilitiesOverride(t *testing.T) {
	caps := DefaultCapabilities()
	out, err := caps.Override(core.CapabilityConfig{
		DisableBatch:  []string{"texture", " Vertex_Buffer "},
		MaxSlots:      map[string]int{"sampler": 4, "image": 1000},
		DisableSparse: true,
	})
	require.NoError(t, err)
	assert.False(t, out.BatchBind[CategoryTexture])
	assert.False(t, out.BatchBind[CategoryVertexBuffer])
	assert.True(t, out.BatchBind[CategorySampler])
	assert.Equal(t, 4, out.MaxSlots[CategorySampler])
	// Overrides only narrow.
	assert.Equal(t, caps.MaxSlots[CategoryImage], out.MaxSlots[CategoryImage])
	assert.False(t, out.SparseBuffer)
	// The receiver is untouched.
	assert.True(t, caps.BatchBind[CategoryTexture])

	_, err = caps.Override(core.CapabilityConfig{DisableBatch: []string{"textures"}})
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
	_, err = caps.Override(core.CapabilityConfig{MaxSlots: map[string]int{"texture": 0}})
	assert.ErrorIs(t, err, core.ErrInvalidCapabilities)
}

func TestCategoryNames(t *testing.T) {
	for _, c := range AllCategories() {
		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	assert.Equal(t, "category(42)", Category(42).String())
	assert.True(t, CategoryVertexBuffer.LayoutDependent())
	assert.True(t, CategoryIndexBuffer.LayoutDependent())
	assert.False(t, CategoryTexture.LayoutDependent())
}
