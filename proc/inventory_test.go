// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"io"
	"strings"
	"testing"
)

// withMapsTable substitutes the kernel map table for the duration of a
// test, counting opens.
func withMapsTable(t *testing.T, table string) *int {
	t.Helper()
	opens := 0
	prev := openMaps
	openMaps = func(pid int) (io.ReadCloser, error) {
		opens++
		return io.NopCloser(strings.NewReader(table)), nil
	}
	t.Cleanup(func() { openMaps = prev })
	return &opens
}

func TestInventoryLazyPopulate(t *testing.T) {
	opens := withMapsTable(t, sampleMaps)
	inv := NewInventory(1234)
	if *opens != 0 {
		t.Fatalf("NewInventory touched the kernel: %d opens", *opens)
	}
	first, err := inv.Regions()
	if err != nil {
		t.Fatal(err)
	}
	second, err := inv.Regions()
	if err != nil {
		t.Fatal(err)
	}
	if *opens != 1 {
		t.Errorf("two queries caused %d opens, want 1", *opens)
	}
	if len(first) != 6 || len(second) != 6 {
		t.Errorf("got %d then %d regions, want 6", len(first), len(second))
	}
}

func TestInventoryRefresh(t *testing.T) {
	opens := withMapsTable(t, sampleMaps)
	inv := NewInventory(1234)
	if _, err := inv.Regions(); err != nil {
		t.Fatal(err)
	}
	if err := inv.Refresh(); err != nil {
		t.Fatal(err)
	}
	if *opens != 2 {
		t.Errorf("refresh after populate caused %d opens, want 2", *opens)
	}
}

func TestInventoryRefreshKeepsOldOnError(t *testing.T) {
	table := sampleMaps
	prev := openMaps
	openMaps = func(pid int) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(table)), nil
	}
	t.Cleanup(func() { openMaps = prev })

	inv := NewInventory(1)
	if _, err := inv.Regions(); err != nil {
		t.Fatal(err)
	}
	table = "garbage\n"
	if err := inv.Refresh(); err == nil {
		t.Fatal("Refresh of a garbage table succeeded")
	}
	regions, err := inv.Regions()
	if err != nil {
		t.Fatalf("Regions after failed refresh: %v", err)
	}
	if len(regions) != 6 {
		t.Errorf("failed refresh clobbered the cache: %d regions", len(regions))
	}
}

func TestInventoryFilter(t *testing.T) {
	withMapsTable(t, sampleMaps)
	inv := NewInventory(1234)

	heaps, err := inv.Filter(ByCategory(CHeap))
	if err != nil {
		t.Fatal(err)
	}
	if len(heaps) != 1 || heaps[0].Pathname != "[heap]" {
		t.Errorf("ByCategory(CHeap) = %+v", heaps)
	}

	writable, err := inv.Filter(func(r Region) bool { return r.Perms.Writable() })
	if err != nil {
		t.Fatal(err)
	}
	if len(writable) != 5 {
		t.Errorf("writable filter returned %d regions, want 5", len(writable))
	}

	all, err := inv.Filter(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Errorf("nil filter returned %d regions, want 6", len(all))
	}
}
