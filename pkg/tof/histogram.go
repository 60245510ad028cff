package tof

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/floats"
)

// Histogram is a fixed binning time-of-flight histogram. Bins hold float64
// so raw and dead time corrected counts share one type.
type Histogram struct {
	Name     string
	MinNs    float64
	MaxNs    float64
	binWidth float64
	bins     []float64
}

func NewHistogram(name string, nBins int, minNs float64, maxNs float64) (*Histogram, error) {
	if nBins <= 0 {
		return nil, fmt.Errorf("histogram %s: number of bins must be positive, got %d", name, nBins)
	}
	if !(maxNs > minNs) {
		return nil, fmt.Errorf("histogram %s: invalid range [%g, %g)", name, minNs, maxNs)
	}
	return &Histogram{
		Name:     name,
		MinNs:    minNs,
		MaxNs:    maxNs,
		binWidth: (maxNs - minNs) / float64(nBins),
		bins:     make([]float64, nBins),
	}, nil
}

// FromCounts builds a histogram around existing bin contents.
func FromCounts(name string, minNs float64, maxNs float64, counts []float64) (*Histogram, error) {
	h, err := NewHistogram(name, len(counts), minNs, maxNs)
	if err != nil {
		return nil, err
	}
	copy(h.bins, counts)
	return h, nil
}

// Fill adds one count. Values outside the range go to the first or last
// bin, NaN goes to the first.
func (h *Histogram) Fill(value float64) {
	h.FillWeight(value, 1)
}

func (h *Histogram) FillWeight(value float64, weight float64) {
	h.bins[h.BinIndex(value)] += weight
}

// BinIndex returns the bin a value falls in, clamped to the edges.
func (h *Histogram) BinIndex(value float64) int {
	if math.IsNaN(value) {
		return 0
	}
	pos := math.Floor((value - h.MinNs) / h.binWidth)
	if math.IsInf(pos, 0) {
		if pos > 0 {
			return len(h.bins) - 1
		}
		return 0
	}
	return clamp(int(max(min(pos, float64(len(h.bins))), -1)), 0, len(h.bins)-1)
}

func (h *Histogram) Counts() []float64 {
	counts := make([]float64, len(h.bins))
	copy(counts, h.bins)
	return counts
}

func (h *Histogram) NBins() int {
	return len(h.bins)
}

func (h *Histogram) BinWidth() float64 {
	return h.binWidth
}

// BinCenters returns the centre of every bin in ns.
func (h *Histogram) BinCenters() []float64 {
	centers := make([]float64, len(h.bins))
	if len(centers) == 1 {
		centers[0] = h.MinNs + h.binWidth/2
		return centers
	}
	return floats.Span(centers, h.MinNs+h.binWidth/2, h.MaxNs-h.binWidth/2)
}

func (h *Histogram) Total() float64 {
	return floats.Sum(h.bins)
}

// Merge adds other bin by bin. Both histograms must share the same binning.
func (h *Histogram) Merge(other *Histogram) error {
	if !h.SameBinning(other) {
		return fmt.Errorf("merging %s into %s: %w", other.Name, h.Name, ErrBinMismatch)
	}
	floats.Add(h.bins, other.bins)
	return nil
}

func (h *Histogram) SameBinning(other *Histogram) bool {
	return len(h.bins) == len(other.bins) && h.MinNs == other.MinNs && h.MaxNs == other.MaxNs
}

func (h *Histogram) Clone() *Histogram {
	clone := *h
	clone.bins = h.Counts()
	return &clone
}

func clamp[T constraints.Ordered](value T, low T, high T) T {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
