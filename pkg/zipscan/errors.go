package zipscan

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedSignature = errors.New("malformed record signature")
	ErrTerminated         = errors.New("scanner terminated")
)

// SignatureError reports 4 leading bytes that match none of the known record
// signatures. The stream is either not a ZIP container or out of sync.
type SignatureError struct {
	Signature [4]byte
	Offset    int64 // stream offset, filled in by the Scanner
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("unsupported entry signature %x at offset %d", e.Signature, e.Offset)
}

func (e *SignatureError) Unwrap() error {
	return ErrMalformedSignature
}

// ReadError wraps a failure of the underlying reader during Scan.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read failed at offset %d: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
