package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	HeaderSize  = 16
	NumChannels = 8
	wordSize    = 2

	// extrasTag ... probeFlags
	compressedFixedWords = 7
	probeTraceBit        = 15
	probeKindMask        = 0x0003
)

type EventKind uint32

const (
	Compressed EventKind = 1
	Waveform   EventKind = 2
)

func (k EventKind) String() string {
	switch k {
	case Compressed:
		return "compressed"
	case Waveform:
		return "waveform"
	default:
		return "unknown"
	}
}

// ProbeKind selects which diagnostic signal the secondary trace carries.
type ProbeKind uint8

const (
	ProbeInput ProbeKind = iota
	ProbeCFD
	ProbeBaseline
	ProbeSmoothed
)

type Trace struct {
	Kind    ProbeKind
	Samples []uint16
}

// RawRecord is one record exactly as it appears in the stream.
// Body fields that do not belong to Kind are left at zero.
type RawRecord struct {
	ByteSize   uint32
	Kind       EventKind
	Channel    uint8
	CoarseTime uint32

	ExtrasTag       uint16
	ExtrasLow       uint16
	ExtrasHigh      uint16
	ShortGateCharge uint16
	LongGateCharge  uint16
	PileupFlag      uint16
	ProbeFlags      uint16

	Samples   []uint16
	Secondary *Trace
}

// RecordReader pulls records from a digitizer stream. It reads exactly the
// bytes of each record from the underlying reader, so callers wanting
// buffering should pass a bufio.Reader.
type RecordReader struct {
	r      io.Reader
	offset int64
	buf    []byte
}

func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: r, buf: make([]byte, 64)}
}

// Offset returns the number of bytes consumed so far.
func (rr *RecordReader) Offset() int64 {
	return rr.offset
}

// NextRecord decodes the next record. It returns io.EOF when the stream ends
// exactly on a record boundary.
func (rr *RecordReader) NextRecord() (RawRecord, error) {
	var rec RawRecord
	start := rr.offset

	header, err := rr.read("header", HeaderSize)
	if err != nil {
		return rec, err
	}
	rec.ByteSize = readDoubleWord(header, 0)
	kind := readDoubleWord(header, 4)
	channel := readDoubleWord(header, 8)
	rec.CoarseTime = readDoubleWord(header, 12)

	if rec.ByteSize < HeaderSize {
		return rec, &CorruptRecordError{Offset: start, Declared: rec.ByteSize, Consumed: HeaderSize}
	}
	if channel >= NumChannels {
		return rec, &InvalidChannelError{Offset: start, Channel: channel}
	}
	rec.Channel = uint8(channel)

	body := recordBody{rr: rr, start: start, declared: rec.ByteSize, consumed: HeaderSize}
	switch EventKind(kind) {
	case Compressed:
		rec.Kind = Compressed
		err = body.readCompressed(&rec)
	case Waveform:
		rec.Kind = Waveform
		rec.Samples, err = body.readSamples("samples")
	default:
		return rec, &UnsupportedEventKindError{Offset: start, Kind: kind}
	}
	if err != nil {
		return rec, err
	}

	if body.consumed != rec.ByteSize {
		return rec, &CorruptRecordError{Offset: start, Declared: rec.ByteSize, Consumed: body.consumed}
	}
	return rec, nil
}

// read consumes exactly n bytes. The returned slice is only valid until the
// next call.
func (rr *RecordReader) read(field string, n int) ([]byte, error) {
	if cap(rr.buf) < n {
		rr.buf = make([]byte, n)
	}
	data := rr.buf[:n]
	nRead, err := io.ReadFull(rr.r, data)
	start := rr.offset
	rr.offset += int64(nRead)
	if err != nil {
		if errors.Is(err, io.EOF) && field == "header" {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, &TruncatedError{Field: field, Offset: start, Expected: n, Available: nRead}
		}
		return nil, fmt.Errorf("error reading %s at offset %d: %w", field, start, err)
	}
	return data, nil
}

type recordBody struct {
	rr       *RecordReader
	start    int64
	declared uint32
	consumed uint32
}

// read refuses to go past the declared record size, so an undersized record
// never consumes bytes of the next one.
func (b *recordBody) read(field string, n int) ([]byte, error) {
	if uint64(b.consumed)+uint64(n) > uint64(b.declared) {
		return nil, &CorruptRecordError{Offset: b.start, Declared: b.declared, Consumed: uint32(min(uint64(b.consumed)+uint64(n), 0xFFFFFFFF))}
	}
	data, err := b.rr.read(field, n)
	if err != nil {
		return nil, err
	}
	b.consumed += uint32(n)
	return data, nil
}

func (b *recordBody) readCompressed(rec *RawRecord) error {
	data, err := b.read("compressed body", compressedFixedWords*wordSize)
	if err != nil {
		return err
	}
	rec.ExtrasTag = readWord(data, 0)
	rec.ExtrasLow = readWord(data, 2)
	rec.ExtrasHigh = readWord(data, 4)
	rec.ShortGateCharge = readWord(data, 6)
	rec.LongGateCharge = readWord(data, 8)
	rec.PileupFlag = readWord(data, 10)
	rec.ProbeFlags = readWord(data, 12)

	rec.Samples, err = b.readSamples("samples")
	if err != nil {
		return err
	}

	if CheckBit(rec.ProbeFlags, probeTraceBit) {
		samples, err := b.readSamples("secondary samples")
		if err != nil {
			return err
		}
		rec.Secondary = &Trace{
			Kind:    ProbeKind(rec.ProbeFlags & probeKindMask),
			Samples: samples,
		}
	}
	return nil
}

// readSamples reads a 32-bit sample count followed by that many words.
func (b *recordBody) readSamples(field string) ([]uint16, error) {
	data, err := b.read(field+" count", 2*wordSize)
	if err != nil {
		return nil, err
	}
	count := readDoubleWord(data, 0)

	// Refuse counts the declared record size cannot hold before allocating
	needed := uint64(b.consumed) + uint64(count)*wordSize
	if needed > uint64(b.declared) {
		return nil, &CorruptRecordError{Offset: b.start, Declared: b.declared, Consumed: uint32(min(needed, 0xFFFFFFFF))}
	}

	samples := make([]uint16, count)
	if count == 0 {
		return samples, nil
	}
	data, err = b.read(field, int(count)*wordSize)
	if err != nil {
		return nil, err
	}
	for i := range samples {
		samples[i] = readWord(data, i*wordSize)
	}
	return samples, nil
}

func readWord(data []byte, position int) uint16 {
	return binary.LittleEndian.Uint16(data[position:])
}

// Logical 32-bit fields travel as two 16-bit words, low word first.
func readDoubleWord(data []byte, position int) uint32 {
	low := uint32(readWord(data, position))
	high := uint32(readWord(data, position+wordSize))
	return low | high<<16
}

func CheckBit(mask uint16, pos uint16) bool {
	return (mask & (1 << pos)) != 0
}

// EncodedSize returns the number of bytes rec takes on the wire.
func EncodedSize(rec RawRecord) uint32 {
	size := uint32(HeaderSize) + 2*wordSize + uint32(len(rec.Samples))*wordSize
	if rec.Kind == Compressed {
		size += compressedFixedWords * wordSize
		if CheckBit(rec.ProbeFlags, probeTraceBit) {
			size += 2 * wordSize
			if rec.Secondary != nil {
				size += uint32(len(rec.Secondary.Samples)) * wordSize
			}
		}
	}
	return size
}

// AppendRecord encodes rec in the digitizer wire format. A zero ByteSize is
// replaced by the encoded size.
func AppendRecord(dst []byte, rec RawRecord) []byte {
	size := rec.ByteSize
	if size == 0 {
		size = EncodedSize(rec)
	}
	dst = appendDoubleWord(dst, size)
	dst = appendDoubleWord(dst, uint32(rec.Kind))
	dst = appendDoubleWord(dst, uint32(rec.Channel))
	dst = appendDoubleWord(dst, rec.CoarseTime)

	if rec.Kind == Compressed {
		for _, w := range []uint16{rec.ExtrasTag, rec.ExtrasLow, rec.ExtrasHigh,
			rec.ShortGateCharge, rec.LongGateCharge, rec.PileupFlag, rec.ProbeFlags} {
			dst = binary.LittleEndian.AppendUint16(dst, w)
		}
	}
	dst = appendSamples(dst, rec.Samples)
	if rec.Kind == Compressed && CheckBit(rec.ProbeFlags, probeTraceBit) {
		var secondary []uint16
		if rec.Secondary != nil {
			secondary = rec.Secondary.Samples
		}
		dst = appendSamples(dst, secondary)
	}
	return dst
}

func appendSamples(dst []byte, samples []uint16) []byte {
	dst = appendDoubleWord(dst, uint32(len(samples)))
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, s)
	}
	return dst
}

func appendDoubleWord(dst []byte, v uint32) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(v&0x0FFFF))
	return binary.LittleEndian.AppendUint16(dst, uint16(v>>16))
}

// CountRecords walks the record headers of a stream without decoding bodies.
func CountRecords(r io.Reader) (int, error) {
	count := 0
	header := make([]byte, HeaderSize)
	var offset int64
	for {
		nRead, err := io.ReadFull(r, header)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return count, &TruncatedError{Field: "header", Offset: offset, Expected: HeaderSize, Available: nRead}
			}
			return count, fmt.Errorf("error reading header counting records: %w", err)
		}
		size := readDoubleWord(header, 0)
		if size < HeaderSize {
			return count, &CorruptRecordError{Offset: offset, Declared: size, Consumed: HeaderSize}
		}
		payloadSize := int64(size) - HeaderSize
		skipped, err := io.CopyN(io.Discard, r, payloadSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, &TruncatedError{Field: "body", Offset: offset + HeaderSize, Expected: int(payloadSize), Available: int(skipped)}
			}
			return count, fmt.Errorf("error skipping record body: %w", err)
		}
		offset += int64(size)
		count++
	}
}

type zstdFile struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

// OpenRawFile opens a digitizer dump, decompressing it on the fly when the
// name ends in .zst.
func OpenRawFile(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	if !strings.HasSuffix(filename, ".zst") {
		return file, nil
	}
	dec, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	return &zstdFile{Decoder: dec, file: file}, nil
}
