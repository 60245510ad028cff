package decoder

import "fmt"

// ExtrasTag selects the layout of the extrasLow/extrasHigh words of a
// compressed record.
type ExtrasTag uint16

const (
	TagExtendedTimeBaseline ExtrasTag = 0
	TagExtendedTimeFlags    ExtrasTag = 1
	TagExtendedTimeFine     ExtrasTag = 2
	TagPeakValue            ExtrasTag = 4
	TagZeroCrossings        ExtrasTag = 5
	TagSentinel             ExtrasTag = 7
)

const (
	fineTimeMask  = 0x03FF
	fineTimeBits  = 10
	fineFlagsMask = 0x003F

	// FineTimeSteps is the number of fine time subdivisions of one sample.
	FineTimeSteps = 1 << fineTimeBits

	SentinelValue uint32 = 0x12345678
)

func (t ExtrasTag) String() string {
	switch t {
	case TagExtendedTimeBaseline:
		return "ExtendedTimeBaseline"
	case TagExtendedTimeFlags:
		return "ExtendedTimeFlags"
	case TagExtendedTimeFine:
		return "ExtendedTimeFine"
	case TagPeakValue:
		return "PeakValue"
	case TagZeroCrossings:
		return "ZeroCrossings"
	case TagSentinel:
		return "Sentinel"
	default:
		return fmt.Sprintf("ExtrasTag(%d)", uint16(t))
	}
}

// Extras is the decoded form of the mode dependent extras words.
type Extras interface {
	Tag() ExtrasTag
}

type ExtendedTimeBaseline struct {
	ExtTime  uint32
	Baseline uint16
}

type ExtendedTimeFlags struct {
	ExtTime uint32
	Flags   uint16
}

type ExtendedTimeFine struct {
	ExtTime  uint32
	Flags    uint16 // 6 bits
	FineTime uint16 // 10 bits, 0..1023
}

type PeakValue struct {
	Peak uint16
}

type ZeroCrossings struct {
	Positive uint16
	Negative uint16
}

type Sentinel struct {
	Value uint32
}

func (ExtendedTimeBaseline) Tag() ExtrasTag { return TagExtendedTimeBaseline }
func (ExtendedTimeFlags) Tag() ExtrasTag    { return TagExtendedTimeFlags }
func (ExtendedTimeFine) Tag() ExtrasTag     { return TagExtendedTimeFine }
func (PeakValue) Tag() ExtrasTag            { return TagPeakValue }
func (ZeroCrossings) Tag() ExtrasTag        { return TagZeroCrossings }
func (Sentinel) Tag() ExtrasTag             { return TagSentinel }

// DecodeExtras interprets the three extras words. Tags outside the fixed
// table are an error, never a guess.
func DecodeExtras(tag uint16, low uint16, high uint16) (Extras, error) {
	switch ExtrasTag(tag) {
	case TagExtendedTimeBaseline:
		return ExtendedTimeBaseline{ExtTime: uint32(high), Baseline: low}, nil
	case TagExtendedTimeFlags:
		return ExtendedTimeFlags{ExtTime: uint32(high), Flags: low}, nil
	case TagExtendedTimeFine:
		return ExtendedTimeFine{
			ExtTime:  uint32(high),
			Flags:    (low >> fineTimeBits) & fineFlagsMask,
			FineTime: low & fineTimeMask,
		}, nil
	case TagPeakValue:
		return PeakValue{Peak: low}, nil
	case TagZeroCrossings:
		return ZeroCrossings{Positive: low, Negative: high}, nil
	case TagSentinel:
		return Sentinel{Value: uint32(high)<<16 | uint32(low)}, nil
	default:
		return nil, &UnsupportedExtrasTagError{Tag: tag}
	}
}

// EncodeExtras is the inverse of DecodeExtras. Fields wider than their wire
// width are masked.
func EncodeExtras(extras Extras) (tag uint16, low uint16, high uint16) {
	switch e := extras.(type) {
	case ExtendedTimeBaseline:
		return uint16(TagExtendedTimeBaseline), e.Baseline, uint16(e.ExtTime)
	case ExtendedTimeFlags:
		return uint16(TagExtendedTimeFlags), e.Flags, uint16(e.ExtTime)
	case ExtendedTimeFine:
		low = (e.Flags&fineFlagsMask)<<fineTimeBits | e.FineTime&fineTimeMask
		return uint16(TagExtendedTimeFine), low, uint16(e.ExtTime)
	case PeakValue:
		return uint16(TagPeakValue), e.Peak, 0
	case ZeroCrossings:
		return uint16(TagZeroCrossings), e.Positive, e.Negative
	case Sentinel:
		return uint16(TagSentinel), uint16(e.Value & 0x0FFFF), uint16(e.Value >> 16)
	}
	return 0, 0, 0
}

// fineTimeOf returns the fine time carried by extras, zero for layouts
// without one.
func fineTimeOf(extras Extras) uint16 {
	if fine, ok := extras.(ExtendedTimeFine); ok {
		return fine.FineTime
	}
	return 0
}
