package tof

import (
	"errors"
	"fmt"
)

var (
	ErrDeadtimeOutOfRange = errors.New("dead time fraction out of range")
	ErrNoCycles           = errors.New("no macropulse cycles recorded")
	ErrBinMismatch        = errors.New("histogram binning mismatch")
)

// DeadtimeOutOfRangeError reports the first bin whose dead time fraction
// is negative or reaches 100%.
type DeadtimeOutOfRangeError struct {
	Bin      int
	Fraction float64
}

func (e *DeadtimeOutOfRangeError) Error() string {
	return fmt.Sprintf("dead time fraction %g at bin %d is outside [0, 1)", e.Fraction, e.Bin)
}

func (e *DeadtimeOutOfRangeError) Is(target error) bool {
	return target == ErrDeadtimeOutOfRange
}
