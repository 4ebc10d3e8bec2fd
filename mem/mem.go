// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mem reads and writes the memory of another live process.
//
// Three interchangeable backends are provided: ProcMem performs
// positioned vectored I/O on the kernel's per-process memory
// pseudo-file, VMMem uses cross-process vectored transfers, and
// TraceMem peeks and pokes one machine word at a time under ptrace.
// None of them requires addresses to be aligned.
package mem

import (
	"unsafe"

	"golang.org/x/memscan/errdefs"
)

// A Reader reads bytes from a target process's address space.
type Reader interface {
	// ReadBytes fills buf from addr. A transfer of fewer than len(buf)
	// bytes is an error.
	ReadBytes(addr uint64, buf []byte) (int, error)

	// ReadPartial reads up to len(buf) bytes from addr, returning how
	// many were transferred. Short transfers are not errors; a
	// zero-length transfer on a non-empty request is. Region walkers
	// use this to read up to the edge of mapped memory.
	ReadPartial(addr uint64, buf []byte) (int, error)
}

// A Writer writes bytes into a target process's address space.
type Writer interface {
	// WriteBytes copies buf to addr. A transfer of fewer than len(buf)
	// bytes is an error.
	WriteBytes(addr uint64, buf []byte) (int, error)
}

// A ReadWriter is a full access backend.
type ReadWriter interface {
	Reader
	Writer
}

// Value constrains the element types a typed transfer can move: the
// fixed-width integers, the machine-sized integers, and the two IEEE
// floating-point widths.
type Value interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// ReadTyped reads exactly sizeof(T) bytes at addr and interprets them
// as a T in the target's native layout. addr need not be aligned.
func ReadTyped[T Value](r Reader, addr uint64) (T, error) {
	var v T
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	n, err := r.ReadBytes(addr, buf)
	if err != nil {
		return v, err
	}
	if n != len(buf) {
		return v, errdefs.Newf(errdefs.ShortTransfer, "read %d bytes at %#x, want %d", n, addr, len(buf))
	}
	return v, nil
}

// WriteTyped writes exactly sizeof(T) bytes of v at addr.
func WriteTyped[T Value](w Writer, addr uint64, v T) error {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	n, err := w.WriteBytes(addr, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errdefs.Newf(errdefs.ShortTransfer, "wrote %d bytes at %#x, want %d", n, addr, len(buf))
	}
	return nil
}

// A Method selects one of the access backends.
type Method int

const (
	// Proc is positioned I/O on the memory pseudo-file.
	Proc Method = iota
	// VM is cross-process vectored transfer.
	VM
	// Trace is word-granular ptrace peek/poke.
	Trace
)

func (m Method) String() string {
	switch m {
	case Proc:
		return "proc"
	case VM:
		return "vm"
	case Trace:
		return "trace"
	}
	return "unknown"
}

// MethodByName parses "proc", "vm" or "trace".
func MethodByName(name string) (Method, bool) {
	switch name {
	case "proc":
		return Proc, true
	case "vm":
		return VM, true
	case "trace":
		return Trace, true
	}
	return Proc, false
}

// New returns a backend of the given method bound to pid. ProcMem
// still needs its explicit Open before use; TraceMem attaches lazily.
func New(m Method, pid int) ReadWriter {
	switch m {
	case VM:
		return NewVMMem(pid)
	case Trace:
		return NewTraceMem(pid)
	default:
		return NewProcMem(pid)
	}
}
