package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMacroTracker(t *testing.T) {
	tracker := NewMacroTracker(3)

	before := Event{Channel: 6}
	assert.False(t, tracker.Observe(&before, 50))
	assert.Zero(t, before.MacroID)
	_, ok := tracker.Tof(50, 0)
	assert.False(t, ok)

	trigger := Event{Channel: 3}
	assert.True(t, tracker.Observe(&trigger, 1000))
	assert.Equal(t, uint64(1), trigger.MacroID)

	after := Event{Channel: 7}
	assert.False(t, tracker.Observe(&after, 1250))
	assert.Equal(t, uint64(1), after.MacroID)
	tof, ok := tracker.Tof(1250, 10)
	assert.True(t, ok)
	assert.Equal(t, 260.0, tof)

	tracker.Observe(&Event{Channel: 3}, 5000)
	assert.Equal(t, uint64(2), tracker.Cycles())
	assert.Equal(t, uint64(2), tracker.MacroID())
}

func TestDisabledMacroTracker(t *testing.T) {
	tracker := NewMacroTracker(-1)
	for ch := range uint8(NumChannels) {
		assert.False(t, tracker.Observe(&Event{Channel: ch}, 100))
	}
	assert.Zero(t, tracker.Cycles())
}
