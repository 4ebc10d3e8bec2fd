// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"golang.org/x/memscan/errdefs"
)

// ProcMem accesses the target through the kernel's per-process memory
// pseudo-file, using positioned vectored I/O with the virtual address
// as the file offset. The handle is owned by exactly one ProcMem;
// concurrent use from two goroutines is not supported.
type ProcMem struct {
	pid int
	f   *os.File
}

// NewProcMem returns an unopened backend for pid. Open must be called
// before any transfer.
func NewProcMem(pid int) *ProcMem {
	return &ProcMem{pid: pid}
}

// Open opens the memory pseudo-file. It is idempotent: opening an
// already-open backend is a no-op.
func (m *ProcMem) Open() error {
	if m.f != nil {
		return nil
	}
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", m.pid), os.O_RDWR, 0)
	if err != nil {
		return errdefs.Wrapf(errdefs.IO, err, "open mem pseudo-file for pid %d", m.pid)
	}
	m.f = f
	return nil
}

// Close releases the handle. The backend can be re-opened afterwards.
func (m *ProcMem) Close() error {
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	if err != nil {
		return errdefs.Wrap(errdefs.IO, err, "close mem pseudo-file")
	}
	return nil
}

// ReadBytes implements Reader.
func (m *ProcMem) ReadBytes(addr uint64, buf []byte) (int, error) {
	n, err := m.read(addr, buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errdefs.Newf(errdefs.ShortTransfer, "preadv at %#x: read %d bytes, want %d", addr, n, len(buf))
	}
	return n, nil
}

// ReadPartial implements Reader.
func (m *ProcMem) ReadPartial(addr uint64, buf []byte) (int, error) {
	return m.read(addr, buf)
}

func (m *ProcMem) read(addr uint64, buf []byte) (int, error) {
	if m.f == nil {
		return 0, errdefs.New(errdefs.BackendUninitialised, "mem pseudo-file not opened")
	}
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := unix.Preadv(int(m.f.Fd()), [][]byte{buf}, int64(addr))
	if err != nil {
		return 0, errdefs.Wrapf(errdefs.PositionedReadFailed, err, "preadv %d bytes at %#x", len(buf), addr)
	}
	if n <= 0 {
		return 0, errdefs.Newf(errdefs.PositionedReadFailed, "preadv at %#x: zero-length transfer", addr)
	}
	return n, nil
}

// WriteBytes implements Writer.
func (m *ProcMem) WriteBytes(addr uint64, buf []byte) (int, error) {
	if m.f == nil {
		return 0, errdefs.New(errdefs.BackendUninitialised, "mem pseudo-file not opened")
	}
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := unix.Pwritev(int(m.f.Fd()), [][]byte{buf}, int64(addr))
	if err != nil {
		return 0, errdefs.Wrapf(errdefs.PositionedWriteFailed, err, "pwritev %d bytes at %#x", len(buf), addr)
	}
	if n != len(buf) {
		return n, errdefs.Newf(errdefs.ShortTransfer, "pwritev at %#x: wrote %d bytes, want %d", addr, n, len(buf))
	}
	return n, nil
}
