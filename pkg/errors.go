package decoder

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated            = errors.New("truncated record")
	ErrCorruptRecord        = errors.New("corrupt record")
	ErrUnsupportedExtrasTag = errors.New("unsupported extras tag")
	ErrUnsupportedEventKind = errors.New("unsupported event kind")
	ErrInvalidChannel       = errors.New("invalid channel")
)

// TruncatedError is returned when the stream ends in the middle of a record.
type TruncatedError struct {
	Field     string
	Offset    int64
	Expected  int
	Available int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated record at offset %d reading %s: expected %d bytes, %d available",
		e.Offset, e.Field, e.Expected, e.Available)
}

func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// CorruptRecordError reports a record whose declared size does not match
// the bytes its body actually takes.
type CorruptRecordError struct {
	Offset   int64
	Declared uint32
	Consumed uint32
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record at offset %d: declared size %d, decoded %d bytes",
		e.Offset, e.Declared, e.Consumed)
}

func (e *CorruptRecordError) Is(target error) bool {
	return target == ErrCorruptRecord
}

type UnsupportedExtrasTagError struct {
	Tag uint16
}

func (e *UnsupportedExtrasTagError) Error() string {
	return fmt.Sprintf("unsupported extras tag %d", e.Tag)
}

func (e *UnsupportedExtrasTagError) Is(target error) bool {
	return target == ErrUnsupportedExtrasTag
}

type UnsupportedEventKindError struct {
	Offset int64
	Kind   uint32
}

func (e *UnsupportedEventKindError) Error() string {
	return fmt.Sprintf("unsupported event kind %d at offset %d", e.Kind, e.Offset)
}

func (e *UnsupportedEventKindError) Is(target error) bool {
	return target == ErrUnsupportedEventKind
}

type InvalidChannelError struct {
	Offset  int64
	Channel uint32
}

func (e *InvalidChannelError) Error() string {
	return fmt.Sprintf("channel %d out of range (0-%d) at offset %d", e.Channel, NumChannels-1, e.Offset)
}

func (e *InvalidChannelError) Is(target error) bool {
	return target == ErrInvalidChannel
}

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}
