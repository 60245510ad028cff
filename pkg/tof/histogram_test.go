package tof

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillClampsToEdges(t *testing.T) {
	h, err := NewHistogram("h", 10, 0, 100)
	require.NoError(t, err)

	for _, value := range []float64{-5, 0, 9.99, 10, 55, 99.9, 100, 1e9, math.Inf(1), math.Inf(-1), math.NaN()} {
		h.Fill(value)
	}
	assert.Equal(t, []float64{5, 1, 0, 0, 0, 1, 0, 0, 0, 4}, h.Counts())
	assert.Equal(t, 11.0, h.Total())
	assert.Equal(t, 10.0, h.BinWidth())
}

func TestNewHistogramRejectsBadBinning(t *testing.T) {
	_, err := NewHistogram("h", 0, 0, 1)
	assert.Error(t, err)
	_, err = NewHistogram("h", 10, 5, 5)
	assert.Error(t, err)
	_, err = NewHistogram("h", 10, math.NaN(), 5)
	assert.Error(t, err)
}

func TestBinCenters(t *testing.T) {
	h, err := NewHistogram("h", 4, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 5, 7}, h.BinCenters())

	single, err := NewHistogram("single", 1, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, []float64{15}, single.BinCenters())
}

func TestMergeIsBinWise(t *testing.T) {
	a, err := FromCounts("a", 0, 4, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	b, err := FromCounts("b", 0, 4, []float64{10, 0, 0, 1})
	require.NoError(t, err)

	require.NoError(t, a.Merge(b))
	assert.Equal(t, []float64{11, 2, 3, 5}, a.Counts())
	assert.Equal(t, []float64{10, 0, 0, 1}, b.Counts())

	other, err := FromCounts("other", 0, 8, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.ErrorIs(t, a.Merge(other), ErrBinMismatch)
}

func TestMergeMatchesSingleFill(t *testing.T) {
	values := []float64{1, 7, 7, 33, 90, 12, 45, 45, 45}
	whole, err := NewHistogram("whole", 10, 0, 100)
	require.NoError(t, err)
	left, err := NewHistogram("left", 10, 0, 100)
	require.NoError(t, err)
	right, err := NewHistogram("right", 10, 0, 100)
	require.NoError(t, err)

	for i, v := range values {
		whole.Fill(v)
		if i%2 == 0 {
			left.Fill(v)
		} else {
			right.Fill(v)
		}
	}
	require.NoError(t, right.Merge(left))
	assert.Equal(t, whole.Counts(), right.Counts())
}

func TestCloneIsIndependent(t *testing.T) {
	h, err := FromCounts("h", 0, 2, []float64{1, 1})
	require.NoError(t, err)
	clone := h.Clone()
	clone.Fill(0.5)
	assert.Equal(t, []float64{1, 1}, h.Counts())
	assert.Equal(t, []float64{2, 1}, clone.Counts())
	assert.True(t, h.SameBinning(clone))
}
