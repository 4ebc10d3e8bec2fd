// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scan finds values satisfying numeric predicates in the
// memory of another process. The predicate engine evaluates a typed
// relational or range query lane-parallel over byte buffers; the
// region walker drives an access backend across an inventory in fixed
// chunks and translates match offsets to absolute addresses.
package scan

import (
	"math/bits"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Element constrains the numeric types the engine can search for.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// An Op names a predicate variant.
type Op int

const (
	// OpEq matches v == a.
	OpEq Op = iota
	// OpGt matches v > a.
	OpGt
	// OpGe matches v >= a.
	OpGe
	// OpLt matches v < a.
	OpLt
	// OpLe matches v <= a.
	OpLe
	// OpBte matches a <= v <= b.
	OpBte
	// OpBter matches a <= v < b.
	OpBter
	// OpBtel matches a < v <= b.
	OpBtel
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpGt:
		return "gt"
	case OpGe:
		return "ge"
	case OpLt:
		return "lt"
	case OpLe:
		return "le"
	case OpBte:
		return "bte"
	case OpBter:
		return "bter"
	case OpBtel:
		return "btel"
	}
	return "unknown"
}

// A Predicate is a typed relational or range query. Comparisons use
// Go's native ordering for T, so a floating-point NaN matches no
// variant, equality included. Range bounds need not be ordered; an
// empty range matches nothing.
type Predicate[T Element] struct {
	Op   Op
	A, B T
}

// Eq matches elements equal to a.
func Eq[T Element](a T) Predicate[T] { return Predicate[T]{Op: OpEq, A: a} }

// Gt matches elements greater than a.
func Gt[T Element](a T) Predicate[T] { return Predicate[T]{Op: OpGt, A: a} }

// Ge matches elements greater than or equal to a.
func Ge[T Element](a T) Predicate[T] { return Predicate[T]{Op: OpGe, A: a} }

// Lt matches elements less than a.
func Lt[T Element](a T) Predicate[T] { return Predicate[T]{Op: OpLt, A: a} }

// Le matches elements less than or equal to a.
func Le[T Element](a T) Predicate[T] { return Predicate[T]{Op: OpLe, A: a} }

// Bte matches elements in [a, b].
func Bte[T Element](a, b T) Predicate[T] { return Predicate[T]{Op: OpBte, A: a, B: b} }

// Bter matches elements in [a, b).
func Bter[T Element](a, b T) Predicate[T] { return Predicate[T]{Op: OpBter, A: a, B: b} }

// Btel matches elements in (a, b].
func Btel[T Element](a, b T) Predicate[T] { return Predicate[T]{Op: OpBtel, A: a, B: b} }

// compile returns the element test for p, chosen once so the chunk
// loop does not re-dispatch per element.
func (p Predicate[T]) compile() func(T) bool {
	a, b := p.A, p.B
	switch p.Op {
	case OpEq:
		return func(v T) bool { return v == a }
	case OpGt:
		return func(v T) bool { return v > a }
	case OpGe:
		return func(v T) bool { return v >= a }
	case OpLt:
		return func(v T) bool { return v < a }
	case OpLe:
		return func(v T) bool { return v <= a }
	case OpBte:
		return func(v T) bool { return v >= a && v <= b }
	case OpBter:
		return func(v T) bool { return v >= a && v < b }
	default:
		return func(v T) bool { return v > a && v <= b }
	}
}

// laneBytes is the SIMD lane width the chunk loop targets: 32 bytes
// where AVX2-class vectors are available, 16 otherwise. The width only
// shapes the chunking; observable output is identical either way.
var laneBytes = pickLaneBytes()

func pickLaneBytes() int {
	if cpu.X86.HasAVX2 {
		return 32
	}
	return 16
}

// Matches evaluates p over buf interpreted as a sequence of T and
// calls yield with the byte offset of each matching element, in
// increasing order. Offsets are always multiples of sizeof(T);
// trailing bytes beyond the last whole element are ignored. Evaluation
// stops when yield returns false; Matches reports whether it ran to
// completion.
//
// Whole lanes of laneBytes/sizeof(T) elements are evaluated chunk-wise
// into a bitmask and matches drained in lane order; the tail past the
// last full lane is evaluated one element at a time. The scalar path
// and the lane path produce identical output.
func (p Predicate[T]) Matches(buf []byte, yield func(off int) bool) bool {
	size := int(unsafe.Sizeof(*new(T)))
	n := len(buf) / size
	if n == 0 {
		return true
	}
	match := p.compile()

	if uintptr(unsafe.Pointer(&buf[0]))%uintptr(align[T]()) != 0 {
		// Misaligned base: reinterpretation is not legal, evaluate
		// every element through the copying loads.
		return p.matchesScalar(buf, yield)
	}
	elems := unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), n)

	lanes := laneBytes / size
	i := 0
	if lanes > 1 {
		for ; i+lanes <= n; i += lanes {
			var mask uint32
			for l := 0; l < lanes; l++ {
				if match(elems[i+l]) {
					mask |= 1 << uint(l)
				}
			}
			for mask != 0 {
				l := bits.TrailingZeros32(mask)
				mask &= mask - 1
				if !yield((i + l) * size) {
					return false
				}
			}
		}
	}
	for ; i < n; i++ {
		if match(elems[i]) {
			if !yield(i * size) {
				return false
			}
		}
	}
	return true
}

// AppendMatches collects every match offset of p in buf into dst.
func (p Predicate[T]) AppendMatches(dst []int, buf []byte) []int {
	p.Matches(buf, func(off int) bool {
		dst = append(dst, off)
		return true
	})
	return dst
}

// matchesScalar is the reference implementation: one element at a
// time, front to back, loads by copy so any buffer alignment is legal.
// The lane path must produce exactly this output.
func (p Predicate[T]) matchesScalar(buf []byte, yield func(off int) bool) bool {
	size := int(unsafe.Sizeof(*new(T)))
	n := len(buf) / size
	match := p.compile()
	for i := 0; i < n; i++ {
		if match(load[T](buf[i*size:])) {
			if !yield(i * size) {
				return false
			}
		}
	}
	return true
}

// load copies one T out of b without requiring alignment.
func load[T Element](b []byte) T {
	var v T
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v)), b)
	return v
}

// align returns the required alignment of T.
func align[T Element]() int {
	return int(unsafe.Alignof(*new(T)))
}
