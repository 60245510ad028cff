package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	correlated []CorrelatedEvent
	singles    []Event
}

func (r *recordingEmitter) Correlated(e CorrelatedEvent) error {
	r.correlated = append(r.correlated, e)
	return nil
}

func (r *recordingEmitter) Single(e Event) error {
	r.singles = append(r.singles, e)
	return nil
}

func compressedEvent(channel uint8, timeNs uint64, fine uint16) Event {
	return Event{Kind: Compressed, Channel: channel, ExtendedTime: timeNs, FineTime: fine, LongGateCharge: uint16(channel) * 100}
}

func newTestCorrelator(t *testing.T, windowNs uint64) (*Correlator, *recordingEmitter) {
	t.Helper()
	emitter := &recordingEmitter{}
	c, err := NewCorrelator([]ChannelPair{{Left: 6, Right: 7}}, windowNs, emitter)
	require.NoError(t, err)
	return c, emitter
}

func TestSameTimetagProducesOneCoincidence(t *testing.T) {
	c, out := newTestCorrelator(t, 0)
	require.NoError(t, c.Push(compressedEvent(7, 2000, 520)))
	require.NoError(t, c.Push(compressedEvent(6, 2000, 500)))
	require.NoError(t, c.Flush())

	require.Len(t, out.correlated, 1)
	assert.Empty(t, out.singles)
	got := out.correlated[0]
	assert.Equal(t, uint8(6), got.LeftChannel)
	assert.Equal(t, uint16(500), got.LeftFineTime)
	assert.Equal(t, uint16(520), got.RightFineTime)
	assert.Equal(t, uint16(600), got.LeftCharge)
	assert.Equal(t, uint16(700), got.RightCharge)
	assert.Equal(t, uint64(1), c.NCorrelated)
}

func TestOutsideWindowBecomesSingles(t *testing.T) {
	c, out := newTestCorrelator(t, 4)
	require.NoError(t, c.Push(compressedEvent(6, 1000, 0)))
	require.NoError(t, c.Push(compressedEvent(7, 1005, 0)))
	require.NoError(t, c.Flush())

	assert.Empty(t, out.correlated)
	require.Len(t, out.singles, 2)
	assert.Equal(t, uint8(6), out.singles[0].Channel)
	assert.Equal(t, uint8(7), out.singles[1].Channel)
	assert.Equal(t, uint64(2), c.NSingles)
}

func TestWithinWindowPairs(t *testing.T) {
	c, out := newTestCorrelator(t, 4)
	require.NoError(t, c.Push(compressedEvent(6, 1000, 0)))
	require.NoError(t, c.Push(compressedEvent(7, 1004, 0)))

	require.Len(t, out.correlated, 1)
	assert.Equal(t, uint64(1000), out.correlated[0].Timetag)
	assert.Equal(t, uint64(1004), out.correlated[0].RightTimetag)
}

func TestDifferentMacropulseDoesNotPair(t *testing.T) {
	c, out := newTestCorrelator(t, 10)
	first := compressedEvent(6, 1000, 0)
	second := compressedEvent(7, 1000, 0)
	second.MacroID = 1
	require.NoError(t, c.Push(first))
	require.NoError(t, c.Push(second))
	require.NoError(t, c.Flush())

	assert.Empty(t, out.correlated)
	assert.Len(t, out.singles, 2)
}

func TestThirdRepeatIsSingle(t *testing.T) {
	c, out := newTestCorrelator(t, 0)
	require.NoError(t, c.Push(compressedEvent(6, 3000, 1)))
	require.NoError(t, c.Push(compressedEvent(7, 3000, 2)))
	require.NoError(t, c.Push(compressedEvent(6, 3000, 3)))
	require.NoError(t, c.Push(compressedEvent(7, 3000, 4)))
	require.NoError(t, c.Flush())

	require.Len(t, out.correlated, 1)
	require.Len(t, out.singles, 2)
	assert.Equal(t, uint16(3), out.singles[0].FineTime)
	assert.Equal(t, uint16(4), out.singles[1].FineTime)

	// a new timetag pairs again
	require.NoError(t, c.Push(compressedEvent(6, 4000, 0)))
	require.NoError(t, c.Push(compressedEvent(7, 4000, 0)))
	assert.Len(t, out.correlated, 2)
}

func TestSameChannelReplacesArmed(t *testing.T) {
	c, out := newTestCorrelator(t, 100)
	require.NoError(t, c.Push(compressedEvent(6, 1000, 0)))
	require.NoError(t, c.Push(compressedEvent(6, 1010, 0)))
	require.NoError(t, c.Push(compressedEvent(7, 1020, 0)))

	require.Len(t, out.singles, 1)
	assert.Equal(t, uint64(1000), out.singles[0].ExtendedTime)
	require.Len(t, out.correlated, 1)
	assert.Equal(t, uint64(1010), out.correlated[0].Timetag)
}

func TestUnpairedChannelsAndWaveformsPassThrough(t *testing.T) {
	c, out := newTestCorrelator(t, 0)
	require.NoError(t, c.Push(Event{Kind: Waveform, Channel: 0, Samples: []uint16{10, 20, 30, 40}}))
	require.NoError(t, c.Push(Event{Kind: Waveform, Channel: 6}))
	require.NoError(t, c.Push(compressedEvent(2, 10, 0)))

	assert.Empty(t, out.correlated)
	assert.Len(t, out.singles, 3)
}

func TestFlushReleasesArmed(t *testing.T) {
	c, out := newTestCorrelator(t, 0)
	require.NoError(t, c.Push(compressedEvent(7, 10, 0)))
	assert.Empty(t, out.singles)
	require.NoError(t, c.Flush())
	require.Len(t, out.singles, 1)
	require.NoError(t, c.Flush())
	assert.Len(t, out.singles, 1)
}

func TestInvalidPairs(t *testing.T) {
	emitter := &recordingEmitter{}
	tests := map[string][]ChannelPair{
		"channel out of range": {{Left: 6, Right: 8}},
		"negative channel":     {{Left: -1, Right: 2}},
		"self pair":            {{Left: 3, Right: 3}},
		"overlapping pairs":    {{Left: 0, Right: 1}, {Left: 1, Right: 2}},
	}
	for name, pairs := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewCorrelator(pairs, 0, emitter)
			assert.Error(t, err)
		})
	}

	_, err := NewCorrelator([]ChannelPair{{Left: 6, Right: 8}}, 0, emitter)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}
