package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tiercache/compress"
	"github.com/hupe1980/tiercache/page"
)

func TestReader_MetadataCopyOver(t *testing.T) {
	f := newFixture(t, fixtureConfig{
		sizes:   []int{80, 80, 80},
		ratio:   0.5,
		minPage: 160,
		codec:   compress.NewLZ4Codec(),
	})
	f.build(t)
	require.Equal(t, 2, f.store.Committed())

	r := f.store.NewReader(f.streams)
	var out page.Page
	require.NoError(t, r.Read(context.Background(), &out, false))

	// Slot 0 covers pages 0 and 1: rows summed, base row id of the first.
	assert.Equal(t, f.pages[0].Rows+f.pages[1].Rows, out.Rows)
	assert.Equal(t, f.pages[0].BaseRowID, out.BaseRowID)
	assert.Equal(t, f.pages[0].RowStride, out.RowStride)
	assert.Equal(t, f.pages[0].SymbolBits, out.SymbolBits)
	assert.Same(t, f.pages[0].Cuts, out.Cuts)

	require.True(t, r.Advance())
	require.NoError(t, r.Read(context.Background(), &out, false))
	assert.Equal(t, f.pages[2].Rows, out.Rows)
	assert.Equal(t, f.pages[2].BaseRowID, out.BaseRowID)
}

func TestReader_SplitViewAliasesTiers(t *testing.T) {
	f := newFixture(t, fixtureConfig{
		sizes:   []int{100, 100},
		ratio:   0.5,
		minPage: 100,
		codec:   compress.NewLZ4CodecUnavailable(),
	})
	f.build(t)

	r := f.store.NewReader(f.streams)
	var out page.Page
	require.NoError(t, r.Read(context.Background(), &out, false))

	host, dev, _, err := f.store.At(0)
	require.NoError(t, err)
	require.NotEmpty(t, out.View.Host)
	require.NotEmpty(t, out.View.Device)
	assert.Same(t, &host[0], &out.View.Host[0], "host region must be aliased, not copied")
	assert.Same(t, &dev[0], &out.View.Device[0], "device region must be aliased, not copied")
	assert.False(t, out.View.Contiguous())
	assert.Equal(t, out.View.Len(), len(host)+len(dev))
}

func TestReader_DeviceViewAliasesStore(t *testing.T) {
	f := newFixture(t, fixtureConfig{
		sizes:   []int{100, 100},
		ratio:   0.0,
		minPage: 100,
		codec:   compress.NewLZ4Codec(),
	})
	f.build(t)

	r := f.store.NewReader(f.streams)
	var out page.Page
	require.NoError(t, r.Read(context.Background(), &out, true))

	_, dev, _, err := f.store.At(0)
	require.NoError(t, err)
	assert.Same(t, &dev[0], &out.View.Device[0], "device-resident slot is aliased even when materialization is requested")
}

func TestReader_ConcurrentReaders(t *testing.T) {
	f := newFixture(t, fixtureConfig{
		sizes:   []int{4 << 10, 6 << 10, 5 << 10, 3 << 10, 8 << 10, 2 << 10},
		ratio:   0.5,
		minPage: 8 << 10,
		codec:   compress.NewLZ4Codec(),
	})
	f.build(t)

	// A bounded pool of workers, each with its own cursor over the shared
	// immutable store.
	var g errgroup.Group
	g.SetLimit(4)
	for worker := 0; worker < 8; worker++ {
		g.Go(func() error {
			r := f.store.NewReader(f.streams)
			var got []byte
			for k := 0; k < f.store.Committed(); k++ {
				if k > 0 {
					r.Advance()
				}
				var out page.Page
				if err := r.Read(context.Background(), &out, true); err != nil {
					return err
				}
				got = out.View.AppendTo(got)
				out.Release()
			}
			if string(got) != string(f.want) {
				return errors.New("replay bytes diverged")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// flakyCodec fails its first decompressions, modelling a hardware engine
// fault, then recovers for the software retry.
type flakyCodec struct {
	*compress.LZ4Codec
	failures atomic.Int32
}

func (c *flakyCodec) Decompress(blob *compress.Blob, dst []byte) error {
	if c.failures.Add(-1) >= 0 {
		return errors.New("engine fault")
	}
	return c.LZ4Codec.Decompress(blob, dst)
}

func TestReader_DecompFallback(t *testing.T) {
	codec := &flakyCodec{LZ4Codec: compress.NewLZ4Codec()}
	codec.failures.Store(1)

	f := newFixtureWithCodec(t, codec, true)
	f.build(t)

	got := f.replay(t, true)
	assert.Equal(t, f.want, got, "software fallback must be transparent")
}

func TestReader_DecompFailureFatalWithoutFallback(t *testing.T) {
	codec := &flakyCodec{LZ4Codec: compress.NewLZ4Codec()}
	codec.failures.Store(1)

	f := newFixtureWithCodec(t, codec, false)
	f.build(t)

	r := f.store.NewReader(f.streams)
	var out page.Page
	require.Error(t, r.Read(context.Background(), &out, true))
}

func newFixtureWithCodec(t *testing.T, codec compress.Codec, fallback bool) *fixture {
	t.Helper()
	return newFixture(t, fixtureConfig{
		sizes:    []int{100, 100, 100, 100},
		ratio:    0.5,
		minPage:  150,
		codec:    codec,
		fallback: fallback,
	})
}

func TestReader_Metrics(t *testing.T) {
	metrics := &countingMetrics{}
	f := newFixture(t, fixtureConfig{
		sizes:   []int{50, 80, 90, 40},
		ratio:   0.5,
		minPage: 100,
		codec:   compress.NewLZ4CodecUnavailable(),
		metrics: metrics,
	})
	f.build(t)
	f.replay(t, true)

	assert.Equal(t, int64(2), metrics.commits.Load())
	assert.Equal(t, int64(2), metrics.reads.Load())
	assert.Equal(t, int64(2), metrics.materialized.Load())
	assert.Zero(t, metrics.fallbacks.Load())
	// Without a compressed region the split accounts for every original byte.
	assert.Equal(t, f.store.SizeBytes(), metrics.splitBytes.Load())
}

type countingMetrics struct {
	commits      atomic.Int64
	splitBytes   atomic.Int64
	reads        atomic.Int64
	materialized atomic.Int64
	fallbacks    atomic.Int64
}

func (m *countingMetrics) RecordCommit(_ int, hostBytes, _, deviceBytes int64) {
	m.commits.Add(1)
	m.splitBytes.Add(hostBytes + deviceBytes)
}

func (m *countingMetrics) RecordRead(_ int, materialized bool, _ time.Duration, _ error) {
	m.reads.Add(1)
	if materialized {
		m.materialized.Add(1)
	}
}

func (m *countingMetrics) RecordDecompFallback(int) { m.fallbacks.Add(1) }
