// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errdefs defines the tagged errors shared by the maps parser,
// the access backends and the scanner. Every fallible operation in this
// module reports one of the kinds below together with a detail string
// naming the syscall or input that failed.
package errdefs

import (
	"errors"
	"fmt"
)

// A Kind labels an error with its source category.
type Kind int

const (
	IO Kind = iota
	ParseStructure
	ParseInteger
	BackendUninitialised
	PositionedReadFailed
	PositionedWriteFailed
	ShortTransfer
	TraceAttachFailed
	TraceDetachFailed
	TraceReadFailed
	TraceWriteFailed
	CrossProcReadFailed
	CrossProcWriteFailed
	ScanNoProgress
)

var kindNames = [...]string{
	IO:                    "io",
	ParseStructure:        "parse structure",
	ParseInteger:          "parse integer",
	BackendUninitialised:  "backend uninitialised",
	PositionedReadFailed:  "positioned read failed",
	PositionedWriteFailed: "positioned write failed",
	ShortTransfer:         "short transfer",
	TraceAttachFailed:     "trace attach failed",
	TraceDetachFailed:     "trace detach failed",
	TraceReadFailed:       "trace read failed",
	TraceWriteFailed:      "trace write failed",
	CrossProcReadFailed:   "cross-process read failed",
	CrossProcWriteFailed:  "cross-process write failed",
	ScanNoProgress:        "scan made no progress",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a tagged error value. Kind identifies the failure category;
// Detail identifies the failing syscall or input and its errno
// equivalent. Err, when non-nil, is the underlying cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Detail + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind and, when
// target's Detail is non-empty, the same detail, so that
// errors.Is(err, &Error{Kind: k}) matches by kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Detail == "" || t.Detail == e.Detail)
}

// New returns a tagged error with the given kind and detail.
func New(k Kind, detail string) error {
	return &Error{Kind: k, Detail: detail}
}

// Newf is New with Sprintf formatting of the detail.
func Newf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with a kind and detail. The cause remains reachable
// through errors.Unwrap.
func Wrap(k Kind, cause error, detail string) error {
	return &Error{Kind: k, Detail: detail, Err: cause}
}

// Wrapf is Wrap with Sprintf formatting of the detail.
func Wrapf(k Kind, cause error, format string, args ...interface{}) error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// IsKind reports whether any error in err's chain carries kind k.
func IsKind(err error, k Kind) bool {
	return errors.Is(err, &Error{Kind: k})
}
