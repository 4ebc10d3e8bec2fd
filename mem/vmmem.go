// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"golang.org/x/sys/unix"

	"golang.org/x/memscan/errdefs"
)

// VMMem accesses the target with single cross-process vectored
// transfers. It holds no handle and needs no attachment; the target
// keeps running, and several VMMem instances for one pid may be used
// concurrently.
type VMMem struct {
	pid int
}

// NewVMMem returns a backend for pid. It is ready immediately.
func NewVMMem(pid int) *VMMem {
	return &VMMem{pid: pid}
}

// ReadBytes implements Reader.
func (m *VMMem) ReadBytes(addr uint64, buf []byte) (int, error) {
	n, err := m.read(addr, buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errdefs.Newf(errdefs.ShortTransfer, "process_vm_readv at %#x: read %d bytes, want %d", addr, n, len(buf))
	}
	return n, nil
}

// ReadPartial implements Reader.
func (m *VMMem) ReadPartial(addr uint64, buf []byte) (int, error) {
	return m.read(addr, buf)
}

func (m *VMMem) read(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(m.pid, local, remote, 0)
	if err != nil {
		return 0, errdefs.Wrapf(errdefs.CrossProcReadFailed, err, "process_vm_readv %d bytes at %#x", len(buf), addr)
	}
	if n <= 0 {
		return 0, errdefs.Newf(errdefs.CrossProcReadFailed, "process_vm_readv at %#x: zero-length transfer", addr)
	}
	return n, nil
}

// WriteBytes implements Writer.
func (m *VMMem) WriteBytes(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMWritev(m.pid, local, remote, 0)
	if err != nil {
		return 0, errdefs.Wrapf(errdefs.CrossProcWriteFailed, err, "process_vm_writev %d bytes at %#x", len(buf), addr)
	}
	if n != len(buf) {
		return n, errdefs.Newf(errdefs.ShortTransfer, "process_vm_writev at %#x: wrote %d bytes, want %d", addr, n, len(buf))
	}
	return n, nil
}
