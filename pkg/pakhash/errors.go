package pakhash

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported compression method")
	ErrDecompress        = errors.New("decompression failed")
)

// EntryError is a per-entry failure. It drops the entry but never the
// container.
type EntryError struct {
	Name   string
	Method uint16
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %s: %v", e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
