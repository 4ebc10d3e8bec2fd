// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"encoding/binary"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/memscan/errdefs"
	"golang.org/x/memscan/proc"
)

// flatMem serves reads from a flat byte array at a base address,
// counting calls. cap limits the bytes returned per call when nonzero.
type flatMem struct {
	base  uint64
	mem   []byte
	cap   int
	reads int
}

func (m *flatMem) ReadBytes(addr uint64, buf []byte) (int, error) {
	n, err := m.ReadPartial(addr, buf)
	if err == nil && n != len(buf) {
		return n, errdefs.Newf(errdefs.ShortTransfer, "read %d bytes, want %d", n, len(buf))
	}
	return n, err
}

func (m *flatMem) ReadPartial(addr uint64, buf []byte) (int, error) {
	m.reads++
	if addr < m.base || addr >= m.base+uint64(len(m.mem)) {
		return 0, errdefs.Newf(errdefs.PositionedReadFailed, "unmapped address %#x", addr)
	}
	n := copy(buf, m.mem[addr-m.base:])
	if m.cap > 0 && n > m.cap {
		n = m.cap
	}
	return n, nil
}

// zeroMem returns 0 bytes from every non-empty request.
type zeroMem struct{}

func (zeroMem) ReadBytes(addr uint64, buf []byte) (int, error)   { return 0, nil }
func (zeroMem) ReadPartial(addr uint64, buf []byte) (int, error) { return 0, nil }

func inventory(t *testing.T, lines ...string) *proc.Inventory {
	t.Helper()
	inv, err := proc.NewInventoryFromMap(1, strings.NewReader(strings.Join(lines, "\n")+"\n"))
	if err != nil {
		t.Fatal(err)
	}
	return inv
}

func TestAbsoluteAddressing(t *testing.T) {
	inv := inventory(t, "100000-110000 rw-p 00000000 00:00 0")
	m := &flatMem{base: 0x100000, mem: make([]byte, 0x10000)}
	binary.LittleEndian.PutUint32(m.mem[0x1234:], 0xDEADBEEF)

	got, err := Run(inv, m, Eq[uint32](0xDEADBEEF), Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{0x101234}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scan = %#x, want %#x", got, want)
	}
}

func TestWalkerChunkCount(t *testing.T) {
	// 0x3000 bytes at chunk size 0x1400: ceil = 3 reads.
	inv := inventory(t, "10000-13000 rw-p 00000000 00:00 0")
	m := &flatMem{base: 0x10000, mem: make([]byte, 0x3000)}
	if _, err := Run(inv, m, Eq[uint32](1), Options{ChunkSize: 0x1400}); err != nil {
		t.Fatal(err)
	}
	if m.reads != 3 {
		t.Errorf("walker issued %d reads, want 3", m.reads)
	}
}

func TestWalkerPartialReadsAdvanceByBytesRead(t *testing.T) {
	inv := inventory(t, "10000-11000 rw-p 00000000 00:00 0")
	m := &flatMem{base: 0x10000, mem: make([]byte, 0x1000), cap: 0x300}
	binary.LittleEndian.PutUint32(m.mem[0x700:], 77)

	got, err := Run(inv, m, Eq[uint32](77), Options{})
	if err != nil {
		t.Fatal(err)
	}
	// 0x700 is a multiple of 4, and 0x300-byte steps keep element
	// alignment, so the match is found despite short reads.
	if !reflect.DeepEqual(got, []uint64{0x10700}) {
		t.Errorf("scan = %#x, want [0x10700]", got)
	}
	if m.reads != 6 {
		t.Errorf("walker issued %d reads, want ceil(0x1000/0x300) = 6", m.reads)
	}
}

func TestWalkerNoProgress(t *testing.T) {
	inv := inventory(t, "10000-11000 rw-p 00000000 00:00 0")
	err := ForEach(inv, zeroMem{}, Eq[uint32](1), Options{}, func(uint64) bool { return true })
	if !errdefs.IsKind(err, errdefs.ScanNoProgress) {
		t.Errorf("zero-byte backend: got %v, want ScanNoProgress", err)
	}
}

func TestWalkerPropagatesReadError(t *testing.T) {
	inv := inventory(t, "10000-11000 rw-p 00000000 00:00 0")
	m := &flatMem{base: 0x90000, mem: make([]byte, 16)} // nothing mapped at the region
	err := ForEach(inv, m, Eq[uint32](1), Options{}, func(uint64) bool { return true })
	if !errdefs.IsKind(err, errdefs.PositionedReadFailed) {
		t.Errorf("failing backend: got %v, want PositionedReadFailed", err)
	}
}

func TestWalkerFilter(t *testing.T) {
	inv := inventory(t,
		"10000-11000 rw-p 00000000 00:00 0 [heap]",
		"20000-21000 rw-p 00000000 00:00 0",
	)
	m := &flatMem{base: 0x10000, mem: make([]byte, 0x11000)}
	binary.LittleEndian.PutUint32(m.mem[0x100:], 5)   // in [heap]
	binary.LittleEndian.PutUint32(m.mem[0x10100:], 5) // in the anonymous region

	got, err := Run(inv, m, Eq[uint32](5), Options{Filter: proc.ByCategory(proc.CHeap)})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []uint64{0x10100}) {
		t.Errorf("filtered scan = %#x, want [0x10100]", got)
	}
}

func TestWalkerEmptyRegion(t *testing.T) {
	// A region list with nothing to scan after filtering performs no
	// reads at all.
	inv := inventory(t, "10000-11000 rw-p 00000000 00:00 0")
	m := &flatMem{base: 0x10000, mem: make([]byte, 0x1000)}
	got, err := Run(inv, m, Eq[uint32](1), Options{Filter: func(proc.Region) bool { return false }})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("scan of nothing = %#x", got)
	}
	if m.reads != 0 {
		t.Errorf("scan of nothing issued %d reads", m.reads)
	}
}

func TestWalkerEarlyStop(t *testing.T) {
	inv := inventory(t, "10000-14000 rw-p 00000000 00:00 0")
	m := &flatMem{base: 0x10000, mem: make([]byte, 0x4000)}
	for off := 0; off < len(m.mem); off += 4 {
		binary.LittleEndian.PutUint32(m.mem[off:], 9)
	}
	var seen []uint64
	err := ForEach(inv, m, Eq[uint32](9), Options{}, func(addr uint64) bool {
		seen = append(seen, addr)
		return len(seen) < 2
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Errorf("early stop saw %d matches, want 2", len(seen))
	}
	// Stopping in the first chunk must not read the remaining three.
	if m.reads != 1 {
		t.Errorf("early stop issued %d reads, want 1", m.reads)
	}
}

func TestWalkerIncreasingOrder(t *testing.T) {
	inv := inventory(t,
		"10000-11000 rw-p 00000000 00:00 0",
		"20000-21000 rw-p 00000000 00:00 0",
	)
	m := &flatMem{base: 0x10000, mem: make([]byte, 0x11000)}
	for _, off := range []int{0x10, 0xffc, 0x10010} {
		binary.LittleEndian.PutUint32(m.mem[off:], 3)
	}
	got, err := Run(inv, m, Eq[uint32](3), Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{0x10010, 0x10ffc, 0x20010}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scan = %#x, want %#x", got, want)
	}
}
