package decoder

import (
	"fmt"
)

// MacroTracker follows the accelerator macropulses announced by the target
// changer channel and provides the time reference for time of flight.
type MacroTracker struct {
	channel int
	macroID uint64
	t0Ns    float64
	cycles  uint64
}

// NewMacroTracker tracks macropulses on channel. A negative channel disables
// tracking, every event then stays unreferenced.
func NewMacroTracker(channel int) *MacroTracker {
	return &MacroTracker{channel: channel}
}

// Observe stamps e with the current macro pulse. A target changer event
// opens a new macropulse referenced to its own time and reports true.
func (m *MacroTracker) Observe(e *Event, timeNs float64) bool {
	trigger := m.channel >= 0 && int(e.Channel) == m.channel
	if trigger {
		m.macroID++
		m.cycles++
		m.t0Ns = timeNs
		if configuration.Verbosity > 1 {
			message := fmt.Sprintf("Macropulse %d at %.1f ns", m.macroID, timeNs)
			logger.Info(message, "trigger")
		}
	}
	e.MacroID = m.macroID
	return trigger
}

// Tof returns the time elapsed since the start of the current macropulse,
// or false before the first one.
func (m *MacroTracker) Tof(timeNs float64, offsetNs float64) (float64, bool) {
	if m.macroID == 0 {
		return 0, false
	}
	return timeNs - m.t0Ns + offsetNs, true
}

func (m *MacroTracker) Cycles() uint64 {
	return m.cycles
}

func (m *MacroTracker) MacroID() uint64 {
	return m.macroID
}
