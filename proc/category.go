// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import "strings"

// A Category is the classifier's verdict on what a region is used for.
// The short String form follows the naming convention that memory
// scanners conventionally present to users.
type Category int

const (
	// Other is any region the classifier has no better name for.
	Other Category = iota
	// Bad marks regions that are pointless or hazardous to scan.
	Bad
	// Video is GPU, ion and other graphics device memory.
	Video
	// CAlloc is a native allocator arena (scudo, jemalloc zero pages,
	// bionic small-object pools).
	CAlloc
	// CBss is a C/C++ .bss segment. Declared for callers that filter on
	// it; Classify never returns it: a .bss region is CData right after a
	// CData region and Other elsewhere.
	CBss
	// CData is a C/C++ .data segment, including the anonymous .bss
	// region immediately following one.
	CData
	// CHeap is the native [heap] break region.
	CHeap
	// JavaHeap is a managed-runtime (Dalvik/ART) object heap.
	JavaHeap
	// Java is any other managed-runtime region.
	Java
	// Anon is an anonymous private rw- mapping.
	Anon
	// CodeSystem is executable code from system images.
	CodeSystem
	// CodeApp is executable code belonging to the application itself.
	CodeApp
	// Stack is a thread stack.
	Stack
	// Ashmem is an Android shared-memory region.
	Ashmem
	// EmulatorRAM is guest RAM of the PPSSPP emulator.
	EmulatorRAM
)

var categoryNames = [...]string{
	Other:       "Other",
	Bad:         "Bad",
	Video:       "V",
	CAlloc:      "Ca",
	CBss:        "Cb",
	CData:       "Cd",
	CHeap:       "Ch",
	JavaHeap:    "Jh",
	Java:        "J",
	Anon:        "A",
	CodeSystem:  "Xs",
	CodeApp:     "Xa",
	Stack:       "S",
	Ashmem:      "As",
	EmulatorRAM: "Ps",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Other"
}

// Categories lists every declared category, in tag order. It includes
// CBss, which Classify never returns.
func Categories() []Category {
	return []Category{
		Bad, Video, CAlloc, CBss, CData, CHeap, JavaHeap, Java,
		Anon, CodeSystem, CodeApp, Stack, Ashmem, EmulatorRAM, Other,
	}
}

// CategoryByName maps a short tag ("Ch", "Jh", ...) back to its
// Category. It reports false for unknown tags.
func CategoryByName(tag string) (Category, bool) {
	for i, n := range categoryNames {
		if n == tag {
			return Category(i), true
		}
	}
	return Other, false
}

// gpuDevicePrefixes is the closed list of device paths that map GPU,
// ion and allied graphics memory.
var gpuDevicePrefixes = []string{
	"/dev/mali",
	"/dev/kgsl",
	"/dev/nv",
	"/dev/tegra",
	"/dev/ion",
	"/dev/pvr",
	"/dev/render",
	"/dev/galcore",
	"/dev/fimg2d",
	"/dev/quadd",
	"/dev/graphics",
	"/dev/mm_",
	"/dev/dri/",
}

// dalvikHeapMarkers name the mappings the managed runtime uses for its
// object heap proper.
var dalvikHeapMarkers = []string{
	"exp", "dalvik-alloc", "dalvik-main", "dalvik-large", "dalvik-free",
}

// dalvikNonHeapMarkers exclude runtime metadata mappings (bitmaps,
// zygote spaces, card tables, jit caches, linear allocs) from JavaHeap.
var dalvikNonHeapMarkers = []string{
	"itmap", "ygote", "ard", "jit", "inear",
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Classify assigns a Category to a region given its pathname,
// permissions and file offset. prevCodeData is the classifier's verdict
// on the previous region in address order: a CData verdict there lets
// the anonymous .bss mapping that immediately follows a .data segment
// inherit the CData label.
//
// Rules are evaluated in a fixed order and the first match wins. The
// table is a heuristic over observed naming conventions, pinned
// branch-by-branch by the package tests.
func Classify(pathname string, perms Perm, offset uint64, prevCodeData bool) Category {
	// Executable mappings are code, split by origin.
	if perms&Exec != 0 {
		if pathname == "" {
			return CodeApp
		}
		if strings.Contains(pathname, "/data/app") || strings.Contains(pathname, "/data/user") {
			return CodeApp
		}
		return CodeSystem
	}

	if strings.HasPrefix(pathname, "/dev") {
		for _, p := range gpuDevicePrefixes {
			if strings.HasPrefix(pathname, p) {
				return Video
			}
		}
		if strings.HasPrefix(pathname, "/dev/xLog") {
			return Bad
		}
	}

	if strings.HasPrefix(pathname, "/system/fonts/") || strings.HasPrefix(pathname, "anon_inode:dmabuf") {
		return Bad
	}

	if strings.Contains(pathname, "[anon:.bss]") {
		if prevCodeData {
			return CData
		}
		return Other
	}

	if strings.HasPrefix(pathname, "/system/") {
		return Other
	}

	if strings.Contains(pathname, "/dev/zero/") {
		return CAlloc
	}
	if strings.Contains(pathname, "PPSSPP_RAM") {
		return EmulatorRAM
	}

	// The remaining name-based rules only apply to ordinary mappings;
	// framework caches, gralloc buffers, vdso pages and devices other
	// than ashmem are excluded and fall through to the tail rules.
	excluded := strings.Contains(pathname, "system@") ||
		strings.Contains(pathname, "gralloc") ||
		strings.Contains(pathname, "[vdso]") ||
		strings.Contains(pathname, "[vectors]") ||
		(strings.HasPrefix(pathname, "/dev/") && !strings.HasPrefix(pathname, "/dev/ashmem"))
	if !excluded {
		if strings.Contains(pathname, "dalvik") {
			if containsAny(pathname, dalvikHeapMarkers) && !containsAny(pathname, dalvikNonHeapMarkers) {
				return JavaHeap
			}
			return Java
		}
		if strings.Contains(pathname, "/lib") && strings.Contains(pathname, ".so") &&
			(strings.Contains(pathname, "/data/") || strings.Contains(pathname, "/mnt/")) {
			return CData
		}
		if strings.Contains(pathname, "malloc") {
			return CAlloc
		}
		if strings.Contains(pathname, "[heap]") {
			return CHeap
		}
		if strings.Contains(pathname, "[stack") {
			return Stack
		}
		if strings.HasPrefix(pathname, "[anon") {
			switch {
			case strings.Contains(pathname, "scudo"),
				strings.Contains(pathname, "libc_malloc"),
				strings.Contains(pathname, "bionic_alloc_small_object"):
				return CAlloc
			case strings.Contains(pathname, "stack"):
				return Stack
			case strings.Contains(pathname, "ashmem"):
				return Ashmem
			case strings.Contains(pathname, "gfx"),
				strings.Contains(pathname, "gralloc"),
				strings.Contains(pathname, "dmabuf"),
				strings.Contains(pathname, "GD"):
				return Video
			}
		}
		if strings.HasPrefix(pathname, "/dev/ashmem") && !strings.Contains(pathname, "MemoryHeapBase") {
			return Ashmem
		}
	}

	if pathname == "" && perms == Read|Write && offset == 0 {
		return Anon
	}
	return Other
}
