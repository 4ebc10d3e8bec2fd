// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"github.com/golang/glog"

	"golang.org/x/memscan/errdefs"
	"golang.org/x/memscan/mem"
	"golang.org/x/memscan/proc"
)

// DefaultChunkSize is the walker's read granularity. It is a multiple
// of every supported element size, so matches never straddle a chunk
// boundary at the default.
const DefaultChunkSize = 4096

// Options configure a scan.
type Options struct {
	// Filter selects which regions to walk; nil walks all of them.
	Filter func(proc.Region) bool
	// ChunkSize is the read granularity in bytes; 0 means
	// DefaultChunkSize. Each chunk is matched on its own, so an element
	// split across two reads is never matched; a ChunkSize that is a
	// multiple of the element size keeps elements from being split.
	ChunkSize int
}

// ForEach scans every filtered region of inv through src for elements
// matching p, calling yield with the absolute virtual address of each
// match in strictly increasing order. Scanning stops early when yield
// returns false; after that no further reads are issued.
//
// Reads step by the bytes actually transferred, so a partial read near
// the edge of mapped memory resumes exactly where it stopped. A failed
// read aborts the scan with its error; a read that transfers nothing
// aborts with a ScanNoProgress error.
//
// The scan is synchronous and single-threaded. Concurrent mutation of
// the target is tolerated but reads may be torn; callers wanting
// parallelism scan disjoint region sets with separate backends.
func ForEach[T Element](inv *proc.Inventory, src mem.Reader, p Predicate[T], o Options, yield func(addr uint64) bool) error {
	regions, err := inv.Filter(o.Filter)
	if err != nil {
		return err
	}
	chunk := o.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	buf := make([]byte, chunk)

	for _, reg := range regions {
		glog.V(2).Infof("scan %s region %x-%x", reg.Category, reg.Start, reg.End)
		cursor := reg.Start
		for cursor < reg.End {
			want := uint64(chunk)
			if rem := reg.End - cursor; rem < want {
				want = rem
			}
			n, err := src.ReadPartial(cursor, buf[:want])
			if err != nil {
				return err
			}
			if n <= 0 {
				return errdefs.Newf(errdefs.ScanNoProgress, "read 0 of %d bytes at %#x", want, cursor)
			}
			stopped := false
			p.Matches(buf[:n], func(off int) bool {
				if !yield(cursor + uint64(off)) {
					stopped = true
					return false
				}
				return true
			})
			if stopped {
				return nil
			}
			cursor += uint64(n)
		}
	}
	return nil
}

// Run is ForEach collecting every match address.
func Run[T Element](inv *proc.Inventory, src mem.Reader, p Predicate[T], o Options) ([]uint64, error) {
	var out []uint64
	err := ForEach(inv, src, p, o, func(addr uint64) bool {
		out = append(out, addr)
		return true
	})
	return out, err
}
