package metadata

import (
	"testing"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestVertexLayoutValidate(t *testing.T) {
	caps := DefaultCapabilities()
	ok := VertexLayout{
		Buffers: []VertexBufferLayout{{Stride: 20}, {Stride: 16, Divisor: 1}},
		Attributes: []VertexAttribute{
			{Location: 0, Buffer: 0, Format: ShaderAttribTypeFloat32_3},
			{Location: 1, Buffer: 0, Format: ShaderAttribTypeFloat32_2, Offset: 12},
			{Location: 2, Buffer: 1, Format: ShaderAttribTypeFloat32_4},
		},
	}
	assert.NoError(t, ok.Validate(caps))
	assert.Equal(t, VertexBufferLayout{Stride: 16, Divisor: 1}, ok.BufferLayout(1))
	assert.Equal(t, VertexBufferLayout{}, ok.BufferLayout(5))

	undeclared := ok
	undeclared.Attributes = []VertexAttribute{{Buffer: 2, Format: ShaderAttribTypeFloat32}}
	assert.ErrorIs(t, undeclared.Validate(caps), core.ErrSlotOutOfRange)

	overflow := ok
	overflow.Attributes = []VertexAttribute{{Buffer: 0, Format: ShaderAttribTypeFloat32_4, Offset: 8}}
	assert.Error(t, overflow.Validate(caps))

	unknown := ok
	unknown.Attributes = []VertexAttribute{{Buffer: 0, Format: ShaderAttributeType(99)}}
	assert.Error(t, unknown.Validate(caps))

	caps.MaxVertexAttributes = 2
	assert.ErrorIs(t, ok.Validate(caps), core.ErrCapacityExceeded)
}

func TestAlignment(t *testing.T) {
	assert.Equal(t, uint64(65536), GetAligned(uint64(1), DefaultSparsePageSize))
	assert.Equal(t, uint64(0), GetAligned(uint64(0), DefaultSparsePageSize))
	assert.True(t, IsAligned(uint64(131072), DefaultSparsePageSize))
	assert.False(t, IsAligned(uint64(131073), DefaultSparsePageSize))
	assert.True(t, IsPowerOfTwo(uint32(1)))
	assert.False(t, IsPowerOfTwo(uint32(0)))
	assert.False(t, IsPowerOfTwo(uint64(96)))

	r := MemoryRange{Offset: 65536, Size: 131072}
	assert.Equal(t, uint64(196608), r.End())
}

func TestBindingIdentity(t *testing.T) {
	h := core.NewHandle(3, 1)
	assert.True(t, Binding{}.IsEmpty())
	assert.False(t, TextureBinding(h).IsEmpty())
	assert.True(t, TextureBinding(h).References(h))
	assert.False(t, Binding{}.References(core.NullHandle))
	// Same index, other generation: a different resource.
	assert.NotEqual(t, TextureBinding(h), TextureBinding(core.NewHandle(3, 2)))
	assert.NotEqual(t, BufferRangeBinding(h, 0, 64), BufferRangeBinding(h, 64, 64))
	assert.Equal(t, "<empty>", Binding{}.String())
}
