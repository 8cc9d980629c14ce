package hostmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Accounting(t *testing.T) {
	p := NewPool(0)

	a, err := p.Alloc(1000)
	require.NoError(t, err)
	require.Len(t, a, 1000)

	b, err := p.Alloc(500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), p.Used())

	p.Free(a)
	assert.Equal(t, int64(500), p.Used())
	p.Free(b)
	assert.Zero(t, p.Used())
}

func TestPool_Budget(t *testing.T) {
	p := NewPool(1024)

	buf, err := p.Alloc(1000)
	require.NoError(t, err)

	_, err = p.Alloc(100)
	require.ErrorIs(t, err, ErrBudgetExceeded)

	p.Free(buf)
	_, err = p.Alloc(1024)
	require.NoError(t, err)
}

func TestPool_ZeroSize(t *testing.T) {
	p := NewPool(10)

	buf, err := p.Alloc(0)
	require.NoError(t, err)
	assert.Nil(t, buf)

	p.Free(nil) // no-op
	assert.Zero(t, p.Used())
}

func TestPool_PinnedNeverExceedsUsed(t *testing.T) {
	// Whether mlock succeeds depends on RLIMIT_MEMLOCK; only the relation
	// is guaranteed.
	p := NewPool(0)
	buf, err := p.Alloc(4096)
	require.NoError(t, err)

	assert.LessOrEqual(t, p.Pinned(), p.Used())
	p.Free(buf)
	assert.Zero(t, p.Used())
	assert.Zero(t, p.Pinned())
}
