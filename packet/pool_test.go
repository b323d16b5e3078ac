package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolClassFor(t *testing.T) {
	p := NewPool(256, 2048, 16384)
	assert.Equal(t, 0, p.classFor(100))
	assert.Equal(t, 0, p.classFor(256))
	assert.Equal(t, 1, p.classFor(257))
	assert.Equal(t, 2, p.classFor(16384))
	assert.Equal(t, -1, p.classFor(16385))
}

func TestPoolMakeWithinClassReturnsToPool(t *testing.T) {
	p := NewPool(64)
	pk := p.Make(8, []byte("data"), 4, 8)
	require.Equal(t, 4, pk.Length())
	assert.Equal(t, "data", string(pk.Bytes()))
	pk.Kill() // returns backing buffer to the pool, doesn't panic
}

func TestPoolMakeAboveLargestClassFallsBackToPlainAlloc(t *testing.T) {
	p := NewPool(16)
	pk := p.Make(0, nil, 64, 0)
	require.Equal(t, 64, pk.Length())
	pk.Kill()
}

func TestPoolMakeZeroesReusedBuffer(t *testing.T) {
	p := NewPool(32)
	first := p.Make(0, []byte("xxxxxxxx"), 8, 0)
	first.Kill() // buffer returned to pool, still holds "xxxxxxxx"

	second := p.Make(0, nil, 8, 0)
	assert.Equal(t, make([]byte, 8), second.Bytes())
	second.Kill()
}
