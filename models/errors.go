package models

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start when a pass is in flight.
var ErrAlreadyRunning = errors.New("sync already running")

// FetchError is a network-level failure talking to the source API.
// Terminal for the whole pass.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch: %s: %v", e.Message, e.Err)
	}
	return "fetch: " + e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a malformed payload from the source API. Terminal for the
// whole pass.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Message, e.Err)
	}
	return "parse: " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError marks one malformed source record. The record is skipped,
// the pass continues.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// StoreWriteError marks a failed create/update/delete for one record.
// Counted as an error, the pass continues.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// AssetError marks a single failed image download or resize. The image is
// skipped, the batch continues.
type AssetError struct {
	URL string
	Err error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s: %v", e.URL, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }
