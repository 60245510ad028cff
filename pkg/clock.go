package decoder

import "fmt"

// ChannelClock holds the rollover state of one channel's 32-bit coarse time.
type ChannelClock struct {
	Previous  uint32
	Rollovers uint64
	started   bool
}

// TimeExtender turns wrapping per-channel coarse timetags into monotonic
// 64-bit times. Channels roll over independently.
type TimeExtender struct {
	samplePeriodNs uint64
	clocks         [NumChannels]ChannelClock
}

func NewTimeExtender(samplePeriodNs uint64) *TimeExtender {
	if samplePeriodNs == 0 {
		samplePeriodNs = 1
	}
	return &TimeExtender{samplePeriodNs: samplePeriodNs}
}

// Extend returns the extended time of a coarse timetag in nanoseconds. A
// coarse value smaller than the previous one on the same channel counts as a
// rollover.
func (t *TimeExtender) Extend(channel uint8, coarse uint32) uint64 {
	return t.ExtendTicks(channel, coarse) * t.samplePeriodNs
}

// ExtendTicks is Extend in sample ticks.
func (t *TimeExtender) ExtendTicks(channel uint8, coarse uint32) uint64 {
	clock := &t.clocks[channel]
	if clock.started && coarse < clock.Previous {
		clock.Rollovers++
		if configuration.Verbosity > 1 {
			message := fmt.Sprintf("Channel %d rollover %d (%d -> %d)", channel, clock.Rollovers, clock.Previous, coarse)
			logger.Info(message, "clock")
		}
	}
	clock.Previous = coarse
	clock.started = true
	return clock.Rollovers<<32 | uint64(coarse)
}

func (t *TimeExtender) SamplePeriodNs() uint64 {
	return t.samplePeriodNs
}

func (t *TimeExtender) Rollovers(channel uint8) uint64 {
	return t.clocks[channel].Rollovers
}

func (t *TimeExtender) Clock(channel uint8) ChannelClock {
	return t.clocks[channel]
}
