package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtrasRoundTrip(t *testing.T) {
	tests := []Extras{
		ExtendedTimeBaseline{ExtTime: 0xBEEF, Baseline: 812},
		ExtendedTimeFlags{ExtTime: 17, Flags: 0x8001},
		ExtendedTimeFine{ExtTime: 0xFFFF, Flags: 0x3F, FineTime: 1023},
		ExtendedTimeFine{ExtTime: 3, Flags: 0x15, FineTime: 500},
		PeakValue{Peak: 4095},
		ZeroCrossings{Positive: 12, Negative: 34},
		Sentinel{Value: SentinelValue},
	}

	for _, extras := range tests {
		t.Run(extras.Tag().String(), func(t *testing.T) {
			tag, low, high := EncodeExtras(extras)
			assert.Equal(t, uint16(extras.Tag()), tag)

			decoded, err := DecodeExtras(tag, low, high)
			require.NoError(t, err)
			assert.Equal(t, extras, decoded)
		})
	}
}

func TestExtendedTimeFineBitLayout(t *testing.T) {
	// flags in bits 10-15, fine time in bits 0-9
	extras, err := DecodeExtras(2, 0b101010_1111101000, 7)
	require.NoError(t, err)
	assert.Equal(t, ExtendedTimeFine{ExtTime: 7, Flags: 0b101010, FineTime: 1000}, extras)

	_, low, _ := EncodeExtras(ExtendedTimeFine{Flags: 0xFF, FineTime: 0xFFFF})
	assert.Equal(t, uint16(0xFFFF), low)
	decoded, err := DecodeExtras(2, low, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(FineTimeSteps-1), decoded.(ExtendedTimeFine).FineTime)
}

func TestUnsupportedExtrasTag(t *testing.T) {
	for _, tag := range []uint16{3, 6, 8, 0xFFFF} {
		_, err := DecodeExtras(tag, 0, 0)
		assert.ErrorIs(t, err, ErrUnsupportedExtrasTag)

		var tagErr *UnsupportedExtrasTagError
		if assert.ErrorAs(t, err, &tagErr) {
			assert.Equal(t, tag, tagErr.Tag)
		}
	}
	assert.Equal(t, "ExtrasTag(3)", ExtrasTag(3).String())
}

func TestFineTimeOnlyFromFineExtras(t *testing.T) {
	assert.Equal(t, uint16(500), fineTimeOf(ExtendedTimeFine{FineTime: 500}))
	assert.Zero(t, fineTimeOf(PeakValue{Peak: 500}))
	assert.Zero(t, fineTimeOf(nil))
}
