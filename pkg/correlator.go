package decoder

import (
	"fmt"
)

// Emitter receives the output of a Correlator.
type Emitter interface {
	Correlated(CorrelatedEvent) error
	Single(Event) error
}

type pairKey struct {
	time    uint64
	runID   int
	macroID uint64
}

func keyOf(e Event) pairKey {
	return pairKey{time: e.ExtendedTime, runID: e.RunID, macroID: e.MacroID}
}

// pairState is Idle while armed is nil.
type pairState struct {
	pair     ChannelPair
	armed    *Event
	lastKeys [2]pairKey
	paired   bool
}

// Correlator pairs compressed events of two channels that share run, macro
// pulse and time within the coincidence window. Only the most recent
// unmatched candidate of each pair is retained.
//
// The state machine is symmetric: whichever channel of a pair arrives first
// arms it, not only the pair's Left channel. The emitted CorrelatedEvent is
// still oriented by the pair.
type Correlator struct {
	windowNs  uint64
	pairs     []pairState
	byChannel [NumChannels]int
	emitter   Emitter

	NCorrelated uint64
	NSingles    uint64
}

func NewCorrelator(pairs []ChannelPair, windowNs uint64, emitter Emitter) (*Correlator, error) {
	c := &Correlator{windowNs: windowNs, emitter: emitter}
	for i := range c.byChannel {
		c.byChannel[i] = -1
	}
	for i, pair := range pairs {
		for _, ch := range []int{pair.Left, pair.Right} {
			if ch < 0 || ch >= NumChannels {
				return nil, fmt.Errorf("pair %d-%d: %w", pair.Left, pair.Right, &InvalidChannelError{Offset: -1, Channel: uint32(ch)})
			}
			if c.byChannel[ch] >= 0 {
				return nil, fmt.Errorf("channel %d used by more than one coincidence pair", ch)
			}
		}
		if pair.Left == pair.Right {
			return nil, fmt.Errorf("pair %d-%d pairs a channel with itself", pair.Left, pair.Right)
		}
		c.byChannel[pair.Left] = i
		c.byChannel[pair.Right] = i
		c.pairs = append(c.pairs, pairState{pair: pair})
	}
	return c, nil
}

// Push feeds the next event in stream order.
func (c *Correlator) Push(e Event) error {
	idx := c.byChannel[e.Channel]
	if e.Kind != Compressed || idx < 0 {
		return c.single(e)
	}
	state := &c.pairs[idx]

	// Only the first two records sharing a key are paired
	key := keyOf(e)
	if state.paired && (key == state.lastKeys[0] || key == state.lastKeys[1]) {
		if configuration.Verbosity > 1 {
			message := fmt.Sprintf("Repeated timetag %d on channel %d treated as single", e.ExtendedTime, e.Channel)
			logger.Info(message, "correlator")
		}
		return c.single(e)
	}

	if state.armed == nil {
		state.armed = &e
		return nil
	}

	armed := *state.armed
	if armed.Channel == e.Channel || !c.matches(armed, e) {
		state.armed = &e
		return c.single(armed)
	}

	state.armed = nil
	state.paired = true
	state.lastKeys = [2]pairKey{keyOf(armed), key}

	left, right := armed, e
	if int(left.Channel) != state.pair.Left {
		left, right = right, left
	}
	c.NCorrelated++
	return c.emitter.Correlated(CorrelatedEvent{
		Timetag:          left.ExtendedTime,
		LeftFineTime:     left.FineTime,
		RightTimetag:     right.ExtendedTime,
		RightFineTime:    right.FineTime,
		LeftCharge:       left.LongGateCharge,
		RightCharge:      right.LongGateCharge,
		LeftShortCharge:  left.ShortGateCharge,
		RightShortCharge: right.ShortGateCharge,
		LeftChannel:      left.Channel,
		RightChannel:     right.Channel,
		RunID:            left.RunID,
		MacroID:          left.MacroID,
	})
}

func (c *Correlator) matches(a Event, b Event) bool {
	if a.RunID != b.RunID || a.MacroID != b.MacroID {
		return false
	}
	diff := b.ExtendedTime - a.ExtendedTime
	if a.ExtendedTime > b.ExtendedTime {
		diff = a.ExtendedTime - b.ExtendedTime
	}
	return diff <= c.windowNs
}

// Flush releases every armed event as a single. Called at end of stream.
func (c *Correlator) Flush() error {
	for i := range c.pairs {
		state := &c.pairs[i]
		if state.armed == nil {
			continue
		}
		armed := *state.armed
		state.armed = nil
		if err := c.single(armed); err != nil {
			return err
		}
	}
	return nil
}

func (c *Correlator) single(e Event) error {
	c.NSingles++
	return c.emitter.Single(e)
}
