// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proc models the virtual-memory map of another live process:
// parsing the kernel's per-process map table, classifying each region
// by purpose, and caching the result as a per-process inventory.
package proc

import (
	"strings"
)

// A Perm represents the permissions of a Region.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
	Shared
)

func (p Perm) Readable() bool   { return p&Read != 0 }
func (p Perm) Writable() bool   { return p&Write != 0 }
func (p Perm) Executable() bool { return p&Exec != 0 }
func (p Perm) IsShared() bool   { return p&Shared != 0 }

func (p Perm) String() string {
	var a [4]string
	b := a[:0]
	if p&Read != 0 {
		b = append(b, "Read")
	}
	if p&Write != 0 {
		b = append(b, "Write")
	}
	if p&Exec != 0 {
		b = append(b, "Exec")
	}
	if p&Shared != 0 {
		b = append(b, "Shared")
	}
	if len(b) == 0 {
		b = append(b, "None")
	}
	return strings.Join(b, "|")
}

// mapsString renders p in the four-character form used by the kernel's
// map table, "rw-p" and friends.
func (p Perm) mapsString() string {
	buf := []byte{'-', '-', '-', 'p'}
	if p&Read != 0 {
		buf[0] = 'r'
	}
	if p&Write != 0 {
		buf[1] = 'w'
	}
	if p&Exec != 0 {
		buf[2] = 'x'
	}
	if p&Shared != 0 {
		buf[3] = 's'
	}
	return string(buf)
}

// A Region describes one contiguous subset of the target's address
// space: the half-open range [Start, End), its permissions and backing
// file identity, and the semantic Category assigned by the classifier.
// Regions are immutable value types; an Inventory holds them sorted by
// Start with no overlaps, and Start and End are page-aligned.
type Region struct {
	Start    uint64
	End      uint64
	Perms    Perm
	Offset   uint64
	DevMajor uint32
	DevMinor uint32
	Inode    uint64
	Pathname string
	Category Category
}

// Size returns End-Start.
func (r Region) Size() uint64 { return r.End - r.Start }

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }
