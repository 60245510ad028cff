package decoder

import (
	"github.com/next-exp/tof_decoder/pkg/tof"
)

// Sink receives everything a pipeline produces.
type Sink interface {
	WriteCorrelatedEvent(CorrelatedEvent) error
	WriteSingle(Event) error
	WriteHistogram(name string, h *tof.Histogram) error
	WriteDeadtime(profile tof.Profile) error
	WriteCorrected(name string, h *tof.Histogram) error
	WriteRunInfo(RunSummary) error
}

// Monitor receives processing counters as they happen.
type Monitor interface {
	RecordDecoded(kind string, channel uint8)
	RecordCorrelated()
	RecordSingle(channel uint8)
	RecordMacropulse()
	RecordRollover(channel uint8)
	RecordError(component string)
	SetMaxDeadtime(histogram string, fraction float64)
}

type nopMonitor struct{}

func (nopMonitor) RecordDecoded(string, uint8)    {}
func (nopMonitor) RecordCorrelated()              {}
func (nopMonitor) RecordSingle(uint8)             {}
func (nopMonitor) RecordMacropulse()              {}
func (nopMonitor) RecordRollover(uint8)           {}
func (nopMonitor) RecordError(string)             {}
func (nopMonitor) SetMaxDeadtime(string, float64) {}

// MemorySink keeps all output in memory. Used for dry runs and tests.
type MemorySink struct {
	Correlated []CorrelatedEvent
	Singles    []Event
	Histograms map[string]*tof.Histogram
	Deadtime   map[string]tof.Profile
	Corrected  map[string]*tof.Histogram
	RunInfo    []RunSummary

	// KeepEvents false only counts events.
	KeepEvents  bool
	NCorrelated int
	NSingles    int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		Histograms: make(map[string]*tof.Histogram),
		Deadtime:   make(map[string]tof.Profile),
		Corrected:  make(map[string]*tof.Histogram),
		KeepEvents: true,
	}
}

func (s *MemorySink) WriteCorrelatedEvent(e CorrelatedEvent) error {
	s.NCorrelated++
	if s.KeepEvents {
		s.Correlated = append(s.Correlated, e)
	}
	return nil
}

func (s *MemorySink) WriteSingle(e Event) error {
	s.NSingles++
	if s.KeepEvents {
		s.Singles = append(s.Singles, e)
	}
	return nil
}

func (s *MemorySink) WriteHistogram(name string, h *tof.Histogram) error {
	s.Histograms[name] = h.Clone()
	return nil
}

func (s *MemorySink) WriteDeadtime(profile tof.Profile) error {
	s.Deadtime[profile.Name] = profile
	return nil
}

func (s *MemorySink) WriteCorrected(name string, h *tof.Histogram) error {
	s.Corrected[name] = h.Clone()
	return nil
}

func (s *MemorySink) WriteRunInfo(summary RunSummary) error {
	s.RunInfo = append(s.RunInfo, summary)
	return nil
}

// MultiSink forwards everything to each of its sinks in order, stopping at
// the first error.
type MultiSink []Sink

func (m MultiSink) WriteCorrelatedEvent(e CorrelatedEvent) error {
	for _, s := range m {
		if err := s.WriteCorrelatedEvent(e); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteSingle(e Event) error {
	for _, s := range m {
		if err := s.WriteSingle(e); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteHistogram(name string, h *tof.Histogram) error {
	for _, s := range m {
		if err := s.WriteHistogram(name, h); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteDeadtime(profile tof.Profile) error {
	for _, s := range m {
		if err := s.WriteDeadtime(profile); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteCorrected(name string, h *tof.Histogram) error {
	for _, s := range m {
		if err := s.WriteCorrected(name, h); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteRunInfo(summary RunSummary) error {
	for _, s := range m {
		if err := s.WriteRunInfo(summary); err != nil {
			return err
		}
	}
	return nil
}
