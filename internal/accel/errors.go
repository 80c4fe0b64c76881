package accel

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrSizeMismatch         = errors.New("segment size mismatch")
	ErrUnexpectedStatus     = errors.New("unexpected status code")
)

// MetadataError is returned when the probe cannot establish a content length.
type MetadataError struct {
	URL string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata probe for %s failed: %v", e.URL, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// TransferError carries the index of the range whose fetch failed.
type TransferError struct {
	Index int
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IOError wraps local filesystem failures during reassembly or cleanup.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
