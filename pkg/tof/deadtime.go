package tof

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// RatePerCycle returns the expected events per bin per macropulse.
func RatePerCycle(h *Histogram, cycles uint64) ([]float64, error) {
	if cycles == 0 {
		return nil, fmt.Errorf("rate of %s: %w", h.Name, ErrNoCycles)
	}
	rate := h.Counts()
	floats.Scale(1/float64(cycles), rate)
	return rate, nil
}

// DeadtimeBins converts the physical dead and transition times into bin
// counts of a histogram with the given bin width.
func DeadtimeBins(deadNs float64, transitionNs float64, binWidthNs float64) (fullDeadBins int, transitionBins int) {
	if binWidthNs <= 0 {
		return 0, 0
	}
	fullDeadBins = int(math.Round(deadNs / binWidthNs))
	transitionBins = int(math.Round(transitionNs / binWidthNs))
	return max(fullDeadBins, 0), max(transitionBins, 0)
}

// EstimateDeadtime computes the dead time fraction of every bin in a single
// backward walk over the preceding fullDeadBins+transitionBins bins. The
// time axis is periodic: indices before the first bin wrap to the end.
func EstimateDeadtime(ratePerCycle []float64, fullDeadBins int, transitionBins int) []float64 {
	n := len(ratePerCycle)
	fractions := make([]float64, n)
	if n == 0 {
		return fractions
	}
	window := fullDeadBins + transitionBins

	for j := range n {
		d := 0.0
		for offset := 1; offset <= window; offset++ {
			k := wrap(j-offset, n)
			contribution := ratePerCycle[k] * (1 - d)
			if offset > fullDeadBins {
				contribution *= float64(window-offset) / float64(transitionBins)
			}
			d += contribution
		}
		d += ratePerCycle[j] / 2 * (1 - d)
		fractions[j] = d
	}
	return fractions
}

func wrap(index int, n int) int {
	index %= n
	if index < 0 {
		index += n
	}
	return index
}

// CorrectDeadtime returns a new histogram with every bin divided by its
// live fraction. Fractions must lie in [0, 1). The input histogram is left
// untouched.
func CorrectDeadtime(h *Histogram, fractions []float64) (*Histogram, error) {
	if len(fractions) != h.NBins() {
		return nil, fmt.Errorf("correcting %s: %d fractions for %d bins: %w", h.Name, len(fractions), h.NBins(), ErrBinMismatch)
	}
	corrected := h.Clone()
	for i, fraction := range fractions {
		if !(fraction >= 0 && fraction < 1) {
			return nil, &DeadtimeOutOfRangeError{Bin: i, Fraction: fraction}
		}
		corrected.bins[i] /= 1 - fraction
	}
	return corrected, nil
}

// Profile bundles the dead time estimate of one histogram.
type Profile struct {
	Name           string
	FullDeadBins   int
	TransitionBins int
	Fractions      []float64
}

func (p Profile) MaxFraction() float64 {
	if len(p.Fractions) == 0 {
		return 0
	}
	return floats.Max(p.Fractions)
}

// Estimate runs the whole estimation for a histogram filled over cycles
// macropulses.
func Estimate(h *Histogram, cycles uint64, deadNs float64, transitionNs float64) (Profile, error) {
	rate, err := RatePerCycle(h, cycles)
	if err != nil {
		return Profile{}, err
	}
	full, transition := DeadtimeBins(deadNs, transitionNs, h.BinWidth())
	return Profile{
		Name:           h.Name,
		FullDeadBins:   full,
		TransitionBins: transition,
		Fractions:      EstimateDeadtime(rate, full, transition),
	}, nil
}
