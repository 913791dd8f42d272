package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCounts(t *testing.T, p *BufferPool, free, device, ready, user int) {
	t.Helper()
	f, d, r, u := p.Count()
	assert.Equal(t, []int{free, device, ready, user}, []int{f, d, r, u}, "free, device, ready, user")
}

func TestBufferPoolLifecycle(t *testing.T) {
	p := NewBufferPool(4, 16)
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, 16, p.BufferSize())

	var given [][]byte
	give := func(b []byte) { given = append(given, b) }

	assert.Equal(t, 2, p.Fill(2, give))
	assert.Equal(t, 0, p.Fill(2, give), "already holds depth")
	assertCounts(t, p, 2, 2, 0, 0)

	require.NoError(t, p.Filled(given[0], 100))
	require.NoError(t, p.Filled(given[1], 200))
	assertCounts(t, p, 2, 0, 2, 0)
	assert.Error(t, p.Filled(given[0], 300), "not with the device")
	assert.Error(t, p.Filled(make([]byte, 16), 300), "foreign")

	select {
	case <-p.Ready():
	default:
		t.Fatal("ready not signalled")
	}

	slot, data, ts, ok := p.Next()
	require.True(t, ok)
	assert.EqualValues(t, 100, ts, "oldest first")
	assert.Equal(t, &given[0][0], &data[0])
	assertCounts(t, p, 2, 0, 1, 1)

	require.NoError(t, p.Return(slot))
	assert.Error(t, p.Return(slot), "returned twice")
	assert.Error(t, p.Return(17))
	assertCounts(t, p, 3, 0, 1, 0)

	p.Reclaim()
	assertCounts(t, p, 4, 0, 0, 0)
	_, _, _, ok = p.Next()
	assert.False(t, ok)
}

func TestBufferPoolLend(t *testing.T) {
	p := NewBufferPool(2, 8)
	var given [][]byte
	p.Fill(1, func(b []byte) { given = append(given, b) })
	require.NoError(t, p.Filled(given[0][:4], 1))

	slot, _, _, ok := p.Next()
	require.True(t, ok)
	f := p.Lend(slot)
	assertCounts(t, p, 1, 0, 0, 1)

	// Reclaim leaves lent buffers alone.
	p.Reclaim()
	assertCounts(t, p, 1, 0, 0, 1)

	f.Release()
	f.Release()
	assertCounts(t, p, 2, 0, 0, 0)
	assert.True(t, f.Released())
}

func TestBufferPoolDiscard(t *testing.T) {
	p := NewBufferPool(2, 8)
	var given [][]byte
	p.Fill(2, func(b []byte) { given = append(given, b) })

	p.Discard(given[0][:0])
	assertCounts(t, p, 1, 1, 0, 0)
	// Only buffers with the device can be discarded.
	p.Discard(given[0])
	assertCounts(t, p, 1, 1, 0, 0)

	require.NoError(t, p.ReturnData(given[1]))
	assert.Error(t, p.ReturnData(make([]byte, 8)))
	assertCounts(t, p, 2, 0, 0, 0)
}

func TestBufferPoolCycleDoesNotAllocate(t *testing.T) {
	p := NewBufferPool(3, 64)
	var last []byte
	give := func(b []byte) { last = b }

	allocs := testing.AllocsPerRun(50, func() {
		p.Fill(1, give)
		if err := p.Filled(last, 1); err != nil {
			t.Fatal(err)
		}
		slot, _, _, ok := p.Next()
		if !ok {
			t.Fatal("no ready buffer")
		}
		if err := p.Return(slot); err != nil {
			t.Fatal(err)
		}
	})
	assert.Zero(t, allocs)
	assertCounts(t, p, 3, 0, 0, 0)
}
