package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrConfirmationPending is returned when a confirmation is requested while another is open
	ErrConfirmationPending = errors.New("a confirmation is already pending")
	// ErrNoPendingConfirmation is returned when accepting with nothing pending
	ErrNoPendingConfirmation = errors.New("no confirmation pending")
	// ErrNoActiveFile is returned by file operations that need an open file
	ErrNoActiveFile = errors.New("no active file")
	// ErrKeyNotFound is returned by stores for missing keys
	ErrKeyNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned when a write does not fit the storage budget
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrNotConnected is returned by transports used before connecting or after closing
	ErrNotConnected = errors.New("not connected")
)

// TransportError is returned once a backend call has exhausted its retries
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s] after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is an error reported by the backend in a result frame
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError represents input rejected before any backend call
type ValidationError struct {
	Field  string // "extension", "size"
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s] %s: %s", e.Field, e.Value, e.Reason)
}

// StorageError represents errors accessing the local cache
type StorageError struct {
	Key string
	Op  string // "get", "put", "delete", "keys"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents errors parsing data
type ParseError struct {
	Source string // "envelope", "cache", "response"
	Key    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReadError is returned when a remote file cannot be read
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read error %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// PartialFailureError reports a confirmed action whose backend step failed
// while the local step succeeded
type PartialFailureError struct {
	Action string
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure [%s]: %v", e.Action, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// ExportError represents errors writing an exported transcript
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
