package decoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/next-exp/tof_decoder/pkg/tof"
)

const MonitorHistogram = "tof_monitor"

func CoincidenceHistogramName(pair ChannelPair) string {
	return fmt.Sprintf("tof_coincidence_%d_%d", pair.Left, pair.Right)
}

func ChannelHistogramName(channel int) string {
	return fmt.Sprintf("tof_ch%d", channel)
}

// Pipeline processes one run strictly in stream order. Its clocks and
// correlator state belong to that run only, so concurrent runs need one
// pipeline each.
type Pipeline struct {
	config     Configuration
	sink       Sink
	monitor    Monitor
	extender   *TimeExtender
	tracker    *MacroTracker
	correlator *Correlator

	coincidences map[ChannelPair]*tof.Histogram
	singles      map[uint8]*tof.Histogram
	monitorHist  *tof.Histogram
	histograms   map[string]*tof.Histogram

	summary  RunSummary
	finished bool
}

func NewPipeline(config Configuration, sink Sink) (*Pipeline, error) {
	p := &Pipeline{
		config:       config,
		sink:         sink,
		monitor:      nopMonitor{},
		extender:     NewTimeExtender(config.SamplePeriodNs),
		tracker:      NewMacroTracker(config.TargetChangerCh),
		coincidences: make(map[ChannelPair]*tof.Histogram),
		singles:      make(map[uint8]*tof.Histogram),
		histograms:   make(map[string]*tof.Histogram),
		summary:      NewRunSummary(config.RunNumber, config.FileIn),
	}

	windowNs := config.CoincidenceWindowTicks * p.extender.SamplePeriodNs()
	correlator, err := NewCorrelator(config.Pairs, windowNs, pipelineEmitter{p})
	if err != nil {
		return nil, fmt.Errorf("error creating correlator: %w", err)
	}
	p.correlator = correlator

	for _, pair := range config.Pairs {
		h, err := p.newHistogram(CoincidenceHistogramName(pair))
		if err != nil {
			return nil, err
		}
		p.coincidences[pair] = h
	}
	for _, ch := range config.SinglesChannels {
		if ch < 0 || ch >= NumChannels {
			return nil, fmt.Errorf("singles channel: %w", &InvalidChannelError{Offset: -1, Channel: uint32(ch)})
		}
		h, err := p.newHistogram(ChannelHistogramName(ch))
		if err != nil {
			return nil, err
		}
		p.singles[uint8(ch)] = h
	}
	if config.MonitorCh >= 0 {
		h, err := p.newHistogram(MonitorHistogram)
		if err != nil {
			return nil, err
		}
		p.monitorHist = h
	}
	return p, nil
}

func (p *Pipeline) newHistogram(name string) (*tof.Histogram, error) {
	h, err := tof.NewHistogram(name, p.config.TofBins, p.config.TofMinNs, p.config.TofMaxNs)
	if err != nil {
		return nil, err
	}
	p.histograms[name] = h
	return h, nil
}

// SetMonitor attaches processing counters. A nil monitor disables them.
func (p *Pipeline) SetMonitor(m Monitor) {
	if m == nil {
		m = nopMonitor{}
	}
	p.monitor = m
}

// Histograms returns the accumulated histograms by name.
func (p *Pipeline) Histograms() map[string]*tof.Histogram {
	return p.histograms
}

func (p *Pipeline) Summary() RunSummary {
	return p.summary
}

// Run decodes the whole stream and finishes the run. Any decode error is
// fatal and nothing past the failing record is processed.
func (p *Pipeline) Run(r io.Reader) (RunSummary, error) {
	reader := NewRecordReader(bufio.NewReader(r))
	for p.config.MaxRecords <= 0 || p.summary.Records < uint64(p.config.MaxRecords) {
		rec, err := reader.NextRecord()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			p.monitor.RecordError("reader")
			return p.summary, fmt.Errorf("error reading record %d: %w", p.summary.Records, err)
		}
		if err := p.ProcessRecord(rec); err != nil {
			return p.summary, err
		}
	}
	if p.config.MaxRecords > 0 && p.summary.Records >= uint64(p.config.MaxRecords) && p.config.Verbosity > 0 {
		logger.Info("Max records reached", "pipeline")
	}
	return p.Finish()
}

// ProcessRecord pushes one record through decoding, time extension and
// correlation.
func (p *Pipeline) ProcessRecord(rec RawRecord) error {
	p.summary.Records++
	p.monitor.RecordDecoded(rec.Kind.String(), rec.Channel)

	var extras Extras
	switch rec.Kind {
	case Compressed:
		p.summary.Compressed++
		var err error
		extras, err = DecodeExtras(rec.ExtrasTag, rec.ExtrasLow, rec.ExtrasHigh)
		if err != nil {
			p.monitor.RecordError("extras")
			return fmt.Errorf("error decoding extras of record %d: %w", p.summary.Records-1, err)
		}
	case Waveform:
		p.summary.Waveforms++
	}

	rollovers := p.extender.Rollovers(rec.Channel)
	extended := p.extender.Extend(rec.Channel, rec.CoarseTime)
	if p.extender.Rollovers(rec.Channel) != rollovers {
		p.monitor.RecordRollover(rec.Channel)
	}

	event := newEvent(rec, extras, extended)
	event.RunID = p.config.RunNumber
	timeNs := event.TimeNs(p.extender.SamplePeriodNs())

	if p.config.Verbosity > 2 {
		message := fmt.Sprintf("Record %d: %s channel %d coarse %d extended %d ns",
			p.summary.Records-1, rec.Kind, rec.Channel, rec.CoarseTime, extended)
		logger.Info(message, "pipeline")
	}

	if p.tracker.Observe(&event, timeNs) {
		p.summary.Macropulses++
		p.monitor.RecordMacropulse()
	}
	event.TofNs = p.tofOf(timeNs)
	if event.Kind == Compressed && int(event.Channel) == p.config.MonitorCh && p.monitorHist != nil {
		p.summary.Monitor++
		p.fillTof(p.monitorHist, event.TofNs)
	}

	return p.correlator.Push(event)
}

// tofOf returns NaN before the first macropulse.
func (p *Pipeline) tofOf(timeNs float64) float64 {
	value, ok := p.tracker.Tof(timeNs, p.config.TofOffsetNs)
	if !ok {
		return math.NaN()
	}
	return value
}

func (p *Pipeline) fillTof(h *tof.Histogram, value float64) {
	if math.IsNaN(value) {
		p.summary.Unreferenced++
		return
	}
	h.Fill(value)
}

// Finish flushes the correlator, writes the histograms and, when enabled,
// their dead time estimate and correction. It runs once.
func (p *Pipeline) Finish() (RunSummary, error) {
	if p.finished {
		return p.summary, nil
	}
	p.finished = true

	if err := p.correlator.Flush(); err != nil {
		return p.summary, err
	}

	names := SortedKeys(p.histograms)
	for _, name := range names {
		if err := p.sink.WriteHistogram(name, p.histograms[name]); err != nil {
			p.monitor.RecordError("sink")
			return p.summary, fmt.Errorf("error writing histogram %s: %w", name, err)
		}
	}

	if p.config.CorrectDeadtime {
		if err := p.correctDeadtime(names); err != nil {
			return p.summary, err
		}
	}

	for ch := range NumChannels {
		p.summary.Rollovers[ch] = p.extender.Rollovers(uint8(ch))
	}
	p.summary.FinishedAt = time.Now().UTC()
	if err := p.sink.WriteRunInfo(p.summary); err != nil {
		p.monitor.RecordError("sink")
		return p.summary, fmt.Errorf("error writing run info: %w", err)
	}

	if p.config.Verbosity > 0 {
		message := fmt.Sprintf("Run %d: %d records, %d coincidences, %d singles, %d macropulses, %d unreferenced",
			p.summary.RunNumber, p.summary.Records, p.summary.Correlated, p.summary.Singles,
			p.summary.Macropulses, p.summary.Unreferenced)
		logger.Info(message, "pipeline")
	}
	return p.summary, nil
}

func (p *Pipeline) correctDeadtime(names []string) error {
	cycles := p.tracker.Cycles()
	for _, name := range names {
		h := p.histograms[name]
		profile, err := tof.Estimate(h, cycles, p.config.DeadTimeNs, p.config.TransitionTimeNs)
		if errors.Is(err, tof.ErrNoCycles) {
			logger.Error(fmt.Sprintf("skipping dead time correction of run %d: %v", p.config.RunNumber, err))
			return nil
		}
		if err != nil {
			return err
		}
		maxFraction := profile.MaxFraction()
		p.summary.MaxDeadtime[name] = maxFraction
		p.monitor.SetMaxDeadtime(name, maxFraction)
		if err := p.sink.WriteDeadtime(profile); err != nil {
			p.monitor.RecordError("sink")
			return fmt.Errorf("error writing dead time of %s: %w", name, err)
		}

		corrected, err := tof.CorrectDeadtime(h, profile.Fractions)
		if err != nil {
			p.monitor.RecordError("deadtime")
			return fmt.Errorf("error correcting %s: %w", name, err)
		}
		if err := p.sink.WriteCorrected(name, corrected); err != nil {
			p.monitor.RecordError("sink")
			return fmt.Errorf("error writing corrected %s: %w", name, err)
		}
		if p.config.Verbosity > 0 {
			message := fmt.Sprintf("%s: %.0f counts, %.0f corrected, max dead time %.2f%%",
				name, h.Total(), corrected.Total(), 100*maxFraction)
			logger.Info(message, "deadtime")
		}
	}
	return nil
}

type pipelineEmitter struct {
	p *Pipeline
}

func (e pipelineEmitter) Correlated(c CorrelatedEvent) error {
	p := e.p
	p.summary.Correlated++
	p.monitor.RecordCorrelated()

	pair := ChannelPair{Left: int(c.LeftChannel), Right: int(c.RightChannel)}
	c.TofNs = p.tofOf(c.MeanTimeNs(p.extender.SamplePeriodNs()))
	p.fillTof(p.coincidences[pair], c.TofNs)

	if !p.config.WriteData {
		return nil
	}
	if err := p.sink.WriteCorrelatedEvent(c); err != nil {
		p.monitor.RecordError("sink")
		return fmt.Errorf("error writing coincidence: %w", err)
	}
	return nil
}

func (e pipelineEmitter) Single(ev Event) error {
	p := e.p
	p.summary.Singles++
	p.monitor.RecordSingle(ev.Channel)

	if h, ok := p.singles[ev.Channel]; ok && ev.Kind == Compressed && int(ev.Channel) != p.config.TargetChangerCh {
		p.fillTof(h, ev.TofNs)
	}

	if !p.config.WriteData {
		return nil
	}
	if err := p.sink.WriteSingle(ev); err != nil {
		p.monitor.RecordError("sink")
		return fmt.Errorf("error writing single: %w", err)
	}
	return nil
}
