package decoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtendMonotonicAcrossRollover(t *testing.T) {
	extender := NewTimeExtender(2)
	coarse := []uint32{10, 1 << 31, math.MaxUint32 - 1, math.MaxUint32, 0, 5, 5, 1 << 30, 3}

	var previous uint64
	for i, c := range coarse {
		extended := extender.Extend(6, c)
		assert.GreaterOrEqual(t, extended, previous, "record %d coarse %d", i, c)
		previous = extended
	}
	assert.Equal(t, uint64(2), extender.Rollovers(6))
	assert.Equal(t, (uint64(2)<<32|3)*2, previous)
}

func TestChannelsRollOverIndependently(t *testing.T) {
	extender := NewTimeExtender(1)
	extender.Extend(6, 1000)
	extender.Extend(7, 10)

	assert.Equal(t, uint64(1)<<32|500, extender.Extend(6, 500))
	assert.Equal(t, uint64(20), extender.Extend(7, 20))
	assert.Equal(t, uint64(1), extender.Rollovers(6))
	assert.Zero(t, extender.Rollovers(7))

	clock := extender.Clock(6)
	assert.Equal(t, uint32(500), clock.Previous)
	assert.Equal(t, uint64(1), clock.Rollovers)
}

func TestFirstRecordNeverRollsOver(t *testing.T) {
	extender := NewTimeExtender(0)
	assert.Equal(t, uint64(1), extender.SamplePeriodNs())
	assert.Equal(t, uint64(0), extender.Extend(2, 0))
	assert.Equal(t, uint64(0), extender.Extend(2, 0))
	assert.Zero(t, extender.Rollovers(2))
}
