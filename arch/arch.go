// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions for the
// target process ABI.
package arch

import (
	"encoding/binary"
	"runtime"
)

// Architecture defines the architecture-specific details for a given machine.
type Architecture struct {
	// WordSize is the size of a ptrace transfer word, in bytes.
	WordSize int
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int
	// ByteOrder is the byte order for ints and pointers.
	ByteOrder binary.ByteOrder
}

// Uintptr decodes a pointer-sized unsigned integer from buf.
func (a *Architecture) Uintptr(buf []byte) uint64 {
	if len(buf) != a.PointerSize {
		panic("bad PointerSize")
	}
	switch a.PointerSize {
	case 4:
		return uint64(a.ByteOrder.Uint32(buf[:4]))
	case 8:
		return a.ByteOrder.Uint64(buf[:8])
	}
	panic("no PointerSize")
}

// UintN decodes an unsigned integer of len(buf) bytes from buf.
func (a *Architecture) UintN(buf []byte) uint64 {
	var u uint64
	if a.ByteOrder == binary.LittleEndian {
		for i := len(buf) - 1; i >= 0; i-- {
			u <<= 8
			u |= uint64(buf[i])
		}
	} else {
		for _, c := range buf {
			u <<= 8
			u |= uint64(c)
		}
	}
	return u
}

// IntN decodes a signed integer of len(buf) bytes from buf.
func (a *Architecture) IntN(buf []byte) int64 {
	u := a.UintN(buf)
	shift := 64 - uint(len(buf))*8
	return int64(u<<shift) >> shift
}

var AMD64 = Architecture{
	WordSize:    8,
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

var X86 = Architecture{
	WordSize:    4,
	PointerSize: 4,
	ByteOrder:   binary.LittleEndian,
}

var ARM64 = Architecture{
	WordSize:    8,
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

var ARM = Architecture{
	WordSize:    4,
	PointerSize: 4,
	ByteOrder:   binary.LittleEndian,
}

// Host returns the architecture this process runs on, which is assumed
// to match the target ABI. Tracing a 32-bit target from a 64-bit
// tracer is not supported.
func Host() *Architecture {
	switch runtime.GOARCH {
	case "386":
		return &X86
	case "arm":
		return &ARM
	case "arm64":
		return &ARM64
	default:
		return &AMD64
	}
}
