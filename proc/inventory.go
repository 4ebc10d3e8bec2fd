// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/memscan/errdefs"
)

// openMaps opens the kernel's map table for pid. A variable so tests
// can substitute canned tables.
var openMaps = func(pid int) (io.ReadCloser, error) {
	return os.Open(fmt.Sprintf("/proc/%d/maps", pid))
}

// An Inventory is the cached region list of one target process. It is
// populated from the kernel on first demand and immutable afterwards;
// Refresh replaces the whole list atomically. A populated Inventory is
// safe for concurrent readers.
type Inventory struct {
	pid int

	mu      sync.Mutex
	regions []Region
	filled  bool
}

// NewInventory returns an empty inventory for pid. No kernel access
// happens until the first query.
func NewInventory(pid int) *Inventory {
	return &Inventory{pid: pid}
}

// NewInventoryFromMap builds an inventory for pid from a map table
// read from rd instead of the kernel, for working against saved
// dumps. The result is already populated; Refresh re-reads the live
// kernel table.
func NewInventoryFromMap(pid int, rd io.Reader) (*Inventory, error) {
	regions, err := Parse(rd)
	if err != nil {
		return nil, err
	}
	return &Inventory{pid: pid, regions: regions, filled: true}, nil
}

// Pid returns the target process identifier.
func (v *Inventory) Pid() int { return v.pid }

// Regions returns all regions in address order, populating the
// inventory on first call. Callers must not modify the returned slice.
func (v *Inventory) Regions() ([]Region, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.filled {
		if err := v.populate(); err != nil {
			return nil, err
		}
	}
	return v.regions, nil
}

// Refresh discards the cached list and re-reads the map table. On
// error the previous list is kept.
func (v *Inventory) Refresh() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	filled, regions := v.filled, v.regions
	v.filled = false
	if err := v.populate(); err != nil {
		v.filled, v.regions = filled, regions
		return err
	}
	return nil
}

// Filter returns the regions satisfying keep, populating the inventory
// if needed. A nil keep returns everything.
func (v *Inventory) Filter(keep func(Region) bool) ([]Region, error) {
	all, err := v.Regions()
	if err != nil {
		return nil, err
	}
	if keep == nil {
		return all, nil
	}
	var out []Region
	for _, r := range all {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ByCategory returns a keep predicate matching any of the given
// categories, for use with Filter.
func ByCategory(cats ...Category) func(Region) bool {
	return func(r Region) bool {
		for _, c := range cats {
			if r.Category == c {
				return true
			}
		}
		return false
	}
}

func (v *Inventory) populate() error {
	f, err := openMaps(v.pid)
	if err != nil {
		return errdefs.Wrapf(errdefs.IO, err, "open map table for pid %d", v.pid)
	}
	defer f.Close()
	regions, err := Parse(f)
	if err != nil {
		return err
	}
	glog.V(1).Infof("pid %d: %d regions", v.pid, len(regions))
	v.regions = regions
	v.filled = true
	return nil
}
