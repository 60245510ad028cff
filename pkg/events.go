package decoder

// Event is a decoded, time extended record.
type Event struct {
	Kind            EventKind
	Channel         uint8
	CoarseTime      uint32
	ExtendedTime    uint64 // ns
	FineTime        uint16
	ShortGateCharge uint16
	LongGateCharge  uint16
	Extras          Extras
	Samples         []uint16
	Secondary       *Trace

	RunID   int
	MacroID uint64
	TofNs   float64 // NaN before the first macropulse
}

// TimeNs returns the fine corrected event time.
func (e Event) TimeNs(samplePeriodNs uint64) float64 {
	return float64(e.ExtendedTime) + float64(e.FineTime)/FineTimeSteps*float64(samplePeriodNs)
}

// CorrelatedEvent merges the left and right detector views of one physical
// event.
type CorrelatedEvent struct {
	Timetag       uint64 // left channel extended time, ns
	LeftFineTime  uint16
	RightFineTime uint16
	LeftCharge    uint16
	RightCharge   uint16

	RightTimetag     uint64
	LeftShortCharge  uint16
	RightShortCharge uint16
	LeftChannel      uint8
	RightChannel     uint8
	RunID            int
	MacroID          uint64
	TofNs            float64
}

// MeanTimeNs returns the average fine corrected time of both sides.
func (c CorrelatedEvent) MeanTimeNs(samplePeriodNs uint64) float64 {
	period := float64(samplePeriodNs)
	left := float64(c.Timetag) + float64(c.LeftFineTime)/FineTimeSteps*period
	right := float64(c.RightTimetag) + float64(c.RightFineTime)/FineTimeSteps*period
	return (left + right) / 2
}

// newEvent moves the record payload into an Event.
func newEvent(rec RawRecord, extras Extras, extendedTime uint64) Event {
	return Event{
		Kind:            rec.Kind,
		Channel:         rec.Channel,
		CoarseTime:      rec.CoarseTime,
		ExtendedTime:    extendedTime,
		FineTime:        fineTimeOf(extras),
		ShortGateCharge: rec.ShortGateCharge,
		LongGateCharge:  rec.LongGateCharge,
		Extras:          extras,
		Samples:         rec.Samples,
		Secondary:       rec.Secondary,
	}
}
