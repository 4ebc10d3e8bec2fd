// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"math/rand"
	"testing"
)

func TestClassify(t *testing.T) {
	for _, tt := range []struct {
		name   string
		path   string
		perms  Perm
		offset uint64
		prevCd bool
		want   Category
	}{
		// Rule 1: executable mappings.
		{"exec app code", "/data/app/com.example/base.apk", Read | Exec, 0, false, CodeApp},
		{"exec user code", "/data/user/0/cache.so", Read | Exec, 0, false, CodeApp},
		{"exec system code", "/system/lib64/libc.so", Read | Exec, 0, false, CodeSystem},
		{"exec anonymous", "", Read | Exec, 0, false, CodeApp},
		{"exec beats device rule", "/dev/mali0", Read | Exec, 0, false, CodeSystem},

		// Rule 2: GPU devices and the xLog pseudo-device.
		{"mali gpu", "/dev/mali0", Read | Write, 0, false, Video},
		{"kgsl gpu", "/dev/kgsl-3d0", Read | Write, 0, false, Video},
		{"dri render node", "/dev/dri/renderD128", Read | Write, 0, false, Video},
		{"mm_ device", "/dev/mm_isp", Read | Write, 0, false, Video},
		{"xLog device", "/dev/xLog", Read | Write, 0, false, Bad},
		{"unknown device", "/dev/binder", Read | Write, 0, false, Other},

		// Rule 3: fonts and dmabuf anon inodes.
		{"system font", "/system/fonts/Roboto.ttf", Read, 0, false, Bad},
		{"dmabuf anon inode", "anon_inode:dmabuf", Read | Write, 0, false, Bad},

		// Rule 4: .bss inherits CData from its predecessor.
		{"bss after data", "[anon:.bss]", Read | Write, 0, true, CData},
		{"bss without data", "[anon:.bss]", Read | Write, 0, false, Other},

		// Rule 5: other /system/ mappings.
		{"system non-font", "/system/framework/framework.jar", Read, 0, false, Other},

		// Rule 6: /dev/zero arenas and PPSSPP guest RAM.
		{"dev zero arena", "/dev/zero/ (deleted)", Read | Write, 0, false, CAlloc},
		{"ppsspp ram", "/memfd:PPSSPP_RAM (deleted)", Read | Write, 0, false, EmulatorRAM},

		// Rule 7 exclusions fall through to the tail rules.
		{"dalvik cache image", "/data/dalvik-cache/system@framework@boot.art", Read, 0, false, Other},
		{"gralloc buffer", "/dev/ashmem/gralloc-buffer", Read | Write, 0, false, Other},
		{"vdso", "[vdso]", Read, 0, false, Other},
		{"vectors", "[vectors]", Read, 0, false, Other},
		{"non-ashmem device", "/dev/hwbinder", Read | Write, 0, false, Other},

		// Rule 7: dalvik heap vs other runtime regions.
		{"dalvik main space", "/dev/ashmem/dalvik-main space (deleted)", Read | Write, 0, false, JavaHeap},
		{"dalvik large objects", "[anon:dalvik-large object space]", Read | Write, 0, false, JavaHeap},
		{"dalvik free list", "[anon:dalvik-free list large object space]", Read | Write, 0, false, JavaHeap},
		{"dalvik bitmap", "[anon:dalvik-allocspace main space live-bitmap 0]", Read | Write, 0, false, Java},
		{"dalvik zygote", "[anon:dalvik-zygote space]", Read | Write, 0, false, Java},
		{"dalvik card table", "[anon:dalvik-card table]", Read | Write, 0, false, Java},
		{"dalvik jit cache", "/dev/ashmem/dalvik-jit-code-cache", Read | Write, 0, false, Java},
		{"dalvik linear alloc", "[anon:dalvik-LinearAlloc", Read | Write, 0, false, Java},

		// Rule 7: writable .so data segments.
		{"app so data", "/data/app/com.example/lib/arm64/libgame.so", Read | Write, 0, false, CData},
		{"mnt so data", "/mnt/expand/uuid/lib/libx.so", Read | Write, 0, false, CData},
		{"system so data is excluded earlier", "/system/lib64/libc.so", Read | Write, 0, false, Other},

		// Rule 7: native allocator names, heap, stack.
		{"malloc arena", "[anon:libc_malloc]", Read | Write, 0, false, CAlloc},
		{"heap", "[heap]", Read | Write, 0, false, CHeap},
		{"main stack", "[stack]", Read | Write, 0, false, Stack},
		{"thread stack", "[stack:4242]", Read | Write, 0, false, Stack},

		// Rule 7: [anon sub-rules.
		{"scudo arena", "[anon:scudo:primary]", Read | Write, 0, false, CAlloc},
		{"bionic small objects", "[anon:bionic_alloc_small_objects]", Read | Write, 0, false, CAlloc},
		{"anon stack guard", "[anon:stack_and_tls:1234]", Read | Write, 0, false, Stack},
		{"anon ashmem", "[anon:ashmem/region]", Read | Write, 0, false, Ashmem},
		{"anon gfx", "[anon:gfx dma buffer]", Read | Write, 0, false, Video},
		{"anon GD", "[anon:GD-surface]", Read | Write, 0, false, Video},

		// Rule 7: ashmem devices, minus the MemoryHeapBase carve-out.
		{"ashmem plain", "/dev/ashmem/shared-mem", Read | Write, 0, false, Ashmem},
		{"ashmem heap base", "/dev/ashmem/MemoryHeapBase", Read | Write, 0, false, Other},

		// Rule 8: anonymous rw- private with zero offset.
		{"anonymous rw", "", Read | Write, 0, false, Anon},
		{"anonymous rw shared", "", Read | Write | Shared, 0, false, Other},
		{"anonymous rw nonzero offset", "", Read | Write, 0x1000, false, Other},
		{"anonymous readonly", "", Read, 0, false, Other},

		// Rule 9: fallback.
		{"ordinary file", "/usr/bin/foo bar", Read | Write, 0x1000, false, Other},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.path, tt.perms, tt.offset, tt.prevCd)
			if got != tt.want {
				t.Errorf("Classify(%q, %v, %#x, %v) = %v, want %v",
					tt.path, tt.perms, tt.offset, tt.prevCd, got, tt.want)
			}
		})
	}
}

// TestClassifyTotal fuzzes pathname and permissions and checks the
// classifier always lands on a declared category.
func TestClassifyTotal(t *testing.T) {
	valid := make(map[Category]bool)
	for _, c := range Categories() {
		valid[c] = true
	}
	fragments := []string{
		"", "/dev/", "/data/app/", "/system/", "dalvik", "-main", "malloc",
		"[anon:", "ashmem", "[heap]", "[stack", ".so", "/lib", "gralloc",
		"system@", "zygote", "bitmap", "exp", "PPSSPP_RAM", "/dev/zero/",
		"MemoryHeapBase", "gfx", "]", "x", "é",
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		var path string
		for n := rng.Intn(5); n > 0; n-- {
			path += fragments[rng.Intn(len(fragments))]
		}
		perms := Perm(rng.Intn(16))
		offset := uint64(rng.Intn(2)) * 0x1000
		got := Classify(path, perms, offset, rng.Intn(2) == 0)
		if !valid[got] {
			t.Fatalf("Classify(%q, %v, %#x) = %v, not a declared category", path, perms, offset, got)
		}
	}
}

func TestCategoryNames(t *testing.T) {
	for _, c := range Categories() {
		got, ok := CategoryByName(c.String())
		if !ok || got != c {
			t.Errorf("CategoryByName(%q) = %v, %v; want %v, true", c.String(), got, ok, c)
		}
	}
	if _, ok := CategoryByName("nope"); ok {
		t.Error("CategoryByName accepted an unknown tag")
	}
}
