package plan

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchesOf(sizes ...int64) []BatchInfo {
	b := make([]BatchInfo, len(sizes))
	for i, n := range sizes {
		b[i] = BatchInfo{Rows: int(n / 8), Bytes: n}
	}
	return b
}

func TestCalcCacheMapping(t *testing.T) {
	tests := []struct {
		name    string
		sizes   []int64
		minPage int64
		want    []int
	}{
		{
			name:    "closes slots at threshold",
			sizes:   []int64{50, 80, 90, 40},
			minPage: 100,
			want:    []int{0, 0, 1, 1},
		},
		{
			name:    "sum exceeds threshold only after both",
			sizes:   []int64{100, 150},
			minPage: 200,
			want:    []int{0, 0},
		},
		{
			name:    "first batch alone reaches threshold",
			sizes:   []int64{100, 150},
			minPage: 100,
			want:    []int{0, 1},
		},
		{
			name:    "everything below threshold collapses to one slot",
			sizes:   []int64{60, 60, 60},
			minPage: 1000,
			want:    []int{0, 0, 0},
		},
		{
			name:    "zero threshold means one slot per batch",
			sizes:   []int64{10, 20, 30},
			minPage: 0,
			want:    []int{0, 1, 2},
		},
		{
			name:    "single batch",
			sizes:   []int64{100},
			minPage: 100,
			want:    []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalcCacheMapping(batchesOf(tt.sizes...), tt.minPage)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalcCacheMapping_Deterministic(t *testing.T) {
	batches := batchesOf(50, 80, 90, 40, 120, 10, 10, 300)

	first := CalcCacheMapping(batches, 128)
	for i := 0; i < 10; i++ {
		if !reflect.DeepEqual(first, CalcCacheMapping(batches, 128)) {
			t.Fatalf("mapping changed between identical calls")
		}
	}
}

func TestCalcCacheMapping_GroupingCorrectness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(40)
		sizes := make([]int64, n)
		for i := range sizes {
			sizes[i] = int64(1 + rng.Intn(500))
		}
		minPage := int64(1 + rng.Intn(1000))

		mapping := CalcCacheMapping(batchesOf(sizes...), minPage)
		require.Len(t, mapping, n)
		require.Equal(t, 0, mapping[0], "first batch must open slot 0")

		for i := 1; i < n; i++ {
			step := mapping[i] - mapping[i-1]
			if step < 0 || step > 1 {
				t.Fatalf("mapping not non-decreasing by at most 1 at %d: %v", i, mapping)
			}
		}
	}
}

func TestPlan_BufferTotals(t *testing.T) {
	info, err := Plan(batchesOf(50, 80, 90, 40), Options{
		HostRatio:         0.5,
		MinCachePageBytes: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 1, 1}, info.Mapping)
	assert.Equal(t, []int64{130, 130}, info.BufferBytes)
	assert.Equal(t, []int{16, 16}, info.BufferRows)
	assert.Equal(t, int64(260), info.TotalBytes)
	assert.Equal(t, 2, info.Slots())
	assert.False(t, info.NoConcat)
	assert.InDelta(t, 0.5, info.HostRatio, 0)
	assert.InDelta(t, DefaultHWDecompRatio, info.HWDecompRatio, 0)
}

func TestPlan_SingleSlotForcesDeviceResidency(t *testing.T) {
	info, err := Plan(batchesOf(50, 80), Options{
		HostRatio:         0.8,
		MinCachePageBytes: 1 << 20,
	})
	require.NoError(t, err)

	require.Equal(t, 1, info.Slots())
	assert.Zero(t, info.HostRatio, "single slot gains nothing from host placement")
}

func TestPlan_NoConcat(t *testing.T) {
	info, err := Plan(batchesOf(10, 20, 30), Options{MinCachePageBytes: 0})
	require.NoError(t, err)

	assert.True(t, info.NoConcat)
	assert.Equal(t, []int{0, 1, 2}, info.Mapping)
	assert.Equal(t, 3, info.Slots())
}

func TestPlan_InvalidHostRatio(t *testing.T) {
	for _, ratio := range []float64{-0.1, 1.5, 2} {
		_, err := Plan(batchesOf(100), Options{HostRatio: ratio, MinCachePageBytes: 10})
		require.ErrorIs(t, err, ErrInvalidHostRatio, "ratio %v", ratio)
	}
}

func TestPlan_NoBatches(t *testing.T) {
	_, err := Plan(nil, Options{})
	require.Error(t, err)
}

func TestPlan_AutoResolution(t *testing.T) {
	policy := func(totalBytes int64, validation bool) (float64, int64) {
		assert.Equal(t, int64(260), totalBytes)
		assert.False(t, validation)
		return 0.25, 100
	}

	info, err := Plan(batchesOf(50, 80, 90, 40), Options{
		HostRatio:         Auto,
		MinCachePageBytes: Auto,
		Policy:            policy,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.25, info.HostRatio, 0)
	assert.Equal(t, []int{0, 0, 1, 1}, info.Mapping)
}

func TestDefaultAutoPolicy(t *testing.T) {
	ratio, minPage := DefaultAutoPolicy(1<<40, false)
	assert.InDelta(t, 0.5, ratio, 0)
	assert.Equal(t, int64(1<<40/32), minPage)

	ratio, minPage = DefaultAutoPolicy(1024, true)
	assert.InDelta(t, 1.0, ratio, 0)
	assert.Equal(t, int64(DefaultMinPageBytesFloor), minPage, "small datasets use the floor")
}
