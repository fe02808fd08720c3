package model

import (
	"errors"
	"fmt"

	"github.com/Velocidex/ordereddict"
)

// ErrorKind classifies failures by the scope they abort.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindDecode aborts the rest of the file.
	KindDecode
	// KindFormat aborts one record: unrecognized creation time.
	KindFormat
	// KindStructure aborts one record: expected locations missing or mistyped.
	KindStructure
	// KindIO aborts the file: the destination cannot be written.
	KindIO
)

var (
	ErrDecode    = errors.New("decode error")
	ErrFormat    = errors.New("format error")
	ErrStructure = errors.New("structural error")
	ErrIO        = errors.New("io error")
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecode:
		return "decode_error"
	case KindFormat:
		return "format_error"
	case KindStructure:
		return "structural_error"
	case KindIO:
		return "io_error"
	default:
		return "unknown_error"
	}
}

// Fatal reports whether the kind stops processing of the current file.
func (k ErrorKind) Fatal() bool {
	return k == KindDecode || k == KindIO
}

// KindOf maps an error onto the taxonomy via the package sentinels.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrFormat):
		return KindFormat
	case errors.Is(err, ErrStructure):
		return KindStructure
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}

// RecordError is a failed record: the kind, where it came from, the tree as
// far as it was built and the triggering error.
type RecordError struct {
	Kind    ErrorKind
	Handle  Handle
	Partial *ordereddict.Dict
	Err     error
}

// NewRecordError derives the kind from err.
func NewRecordError(h Handle, partial *ordereddict.Dict, err error) *RecordError {
	kind := KindOf(err)
	if kind == KindUnknown {
		kind = KindStructure
	}
	return &RecordError{Kind: kind, Handle: h, Partial: partial, Err: err}
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: record %d of %s: %v", e.Kind, e.Handle.Index, e.Handle.Path, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
