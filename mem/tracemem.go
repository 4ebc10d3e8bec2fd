// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"runtime"

	"golang.org/x/sys/unix"

	"golang.org/x/memscan/arch"
	"golang.org/x/memscan/errdefs"
)

// The ptrace syscalls, as variables so tests can substitute scripted
// targets. Each peek and poke moves exactly one machine word at an
// aligned address.
var (
	ptraceAttach = unix.PtraceAttach
	ptraceDetach = unix.PtraceDetach
	ptracePeek   = func(pid int, addr uintptr, word []byte) (int, error) {
		return unix.PtracePeekData(pid, addr, word)
	}
	ptracePoke = func(pid int, addr uintptr, word []byte) (int, error) {
		return unix.PtracePokeData(pid, addr, word)
	}
	ptraceWait = func(pid int) (unix.WaitStatus, error) {
		var status unix.WaitStatus
		_, err := unix.Wait4(pid, &status, 0, nil)
		return status, err
	}
)

// TraceMem accesses a stopped target with word-granular ptrace
// peek/poke. The first transfer attaches to the target and waits for
// it to stop; Detach (or Close) is explicit, because detach can fail
// and a finalizer would have nowhere to report it.
//
// Attachment is a process-wide exclusive resource: attaching while
// another tracer owns the target fails. TraceMem does not arbitrate
// against other tracers beyond reporting that failure.
type TraceMem struct {
	pid      int
	attached bool

	// Linux ties tracer rights to the thread that attached, so every
	// ptrace call is funnelled through one locked OS thread.
	fc chan func() error
	ec chan error
}

// NewTraceMem returns an unattached backend for pid.
func NewTraceMem(pid int) *TraceMem {
	return &TraceMem{pid: pid}
}

// ptraceRun runs all the closures from fc on a dedicated OS thread.
// Errors are returned on ec. Both channels must be unbuffered, to
// ensure that the resultant error is sent back to the same goroutine
// that sent the closure.
func ptraceRun(fc chan func() error, ec chan error) {
	if cap(fc) != 0 || cap(ec) != 0 {
		panic("ptraceRun was given buffered channels")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for f := range fc {
		ec <- f()
	}
}

// call runs f on the ptrace thread and returns its error.
func (m *TraceMem) call(f func() error) error {
	m.fc <- f
	return <-m.ec
}

// attach attaches to the target and waits for it to enter the stopped
// state. It is a no-op when already attached.
func (m *TraceMem) attach() error {
	if m.attached {
		return nil
	}
	if m.fc == nil {
		m.fc = make(chan func() error)
		m.ec = make(chan error)
		go ptraceRun(m.fc, m.ec)
	}
	err := m.call(func() error {
		if err := ptraceAttach(m.pid); err != nil {
			return err
		}
		status, err := ptraceWait(m.pid)
		if err != nil {
			return err
		}
		if !status.Stopped() {
			return errdefs.Newf(errdefs.TraceAttachFailed, "pid %d did not stop, wait status %#x", m.pid, status)
		}
		return nil
	})
	if err != nil {
		if errdefs.IsKind(err, errdefs.TraceAttachFailed) {
			return err
		}
		return errdefs.Wrapf(errdefs.TraceAttachFailed, err, "ptrace attach to pid %d", m.pid)
	}
	m.attached = true
	return nil
}

// Detach releases the target. It is a no-op when not attached.
func (m *TraceMem) Detach() error {
	if !m.attached {
		return nil
	}
	err := m.call(func() error { return ptraceDetach(m.pid) })
	if err != nil {
		return errdefs.Wrapf(errdefs.TraceDetachFailed, err, "ptrace detach from pid %d", m.pid)
	}
	m.attached = false
	return nil
}

// Close detaches if attached and stops the ptrace thread.
func (m *TraceMem) Close() error {
	err := m.Detach()
	if m.fc != nil {
		close(m.fc)
		m.fc = nil
		m.ec = nil
	}
	return err
}

// ReadBytes implements Reader.
func (m *TraceMem) ReadBytes(addr uint64, buf []byte) (int, error) {
	n, err := m.read(addr, buf, false)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, errdefs.Newf(errdefs.ShortTransfer, "ptrace peek at %#x: read %d bytes, want %d", addr, n, len(buf))
	}
	return n, nil
}

// ReadPartial implements Reader.
func (m *TraceMem) ReadPartial(addr uint64, buf []byte) (int, error) {
	return m.read(addr, buf, true)
}

// read copies len(buf) bytes starting at addr, one machine word per
// peek. The first word may be read at a skew: the word is fetched from
// the aligned address below the cursor and only the bytes past the
// skew are taken. Later words are aligned; the last one may be only
// partly copied.
func (m *TraceMem) read(addr uint64, buf []byte, allowShort bool) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if err := m.attach(); err != nil {
		return 0, err
	}
	wordSize := arch.Host().WordSize
	word := make([]byte, wordSize)
	done := 0
	for done < len(buf) {
		cur := addr + uint64(done)
		skew := int(cur % uint64(wordSize))
		aligned := uintptr(cur) - uintptr(skew)
		err := m.call(func() error {
			n, err := ptracePeek(m.pid, aligned, word)
			if err != nil {
				return err
			}
			if n != wordSize {
				return errdefs.Newf(errdefs.TraceReadFailed, "peek at %#x: got %d bytes, want %d", aligned, n, wordSize)
			}
			return nil
		})
		if err != nil {
			if allowShort && done > 0 {
				return done, nil
			}
			if errdefs.IsKind(err, errdefs.TraceReadFailed) {
				return done, err
			}
			return done, errdefs.Wrapf(errdefs.TraceReadFailed, err, "ptrace peek at %#x", aligned)
		}
		take := wordSize - skew
		if rem := len(buf) - done; take > rem {
			take = rem
		}
		copy(buf[done:done+take], word[skew:skew+take])
		done += take
	}
	return done, nil
}

// WriteBytes implements Writer. Whole aligned words are poked
// directly; partial words are composed by overlaying the source bytes
// on the word peeked at the same aligned address, then poked back.
func (m *TraceMem) WriteBytes(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if err := m.attach(); err != nil {
		return 0, err
	}
	wordSize := arch.Host().WordSize
	word := make([]byte, wordSize)
	done := 0
	for done < len(buf) {
		cur := addr + uint64(done)
		skew := int(cur % uint64(wordSize))
		aligned := uintptr(cur) - uintptr(skew)
		rem := len(buf) - done

		if skew == 0 && rem >= wordSize {
			copy(word, buf[done:done+wordSize])
			if err := m.poke(aligned, word); err != nil {
				return done, err
			}
			done += wordSize
			continue
		}

		// Partial word: peek-modify-poke at the aligned address the
		// cursor falls in.
		err := m.call(func() error {
			n, err := ptracePeek(m.pid, aligned, word)
			if err != nil {
				return err
			}
			if n != wordSize {
				return errdefs.Newf(errdefs.TraceWriteFailed, "peek at %#x: got %d bytes, want %d", aligned, n, wordSize)
			}
			return nil
		})
		if err != nil {
			if errdefs.IsKind(err, errdefs.TraceWriteFailed) {
				return done, err
			}
			return done, errdefs.Wrapf(errdefs.TraceWriteFailed, err, "ptrace peek for partial write at %#x", aligned)
		}
		take := wordSize - skew
		if take > rem {
			take = rem
		}
		copy(word[skew:skew+take], buf[done:done+take])
		if err := m.poke(aligned, word); err != nil {
			return done, err
		}
		done += take
	}
	return done, nil
}

func (m *TraceMem) poke(aligned uintptr, word []byte) error {
	err := m.call(func() error {
		n, err := ptracePoke(m.pid, aligned, word)
		if err != nil {
			return err
		}
		if n != len(word) {
			return errdefs.Newf(errdefs.TraceWriteFailed, "poke at %#x: put %d bytes, want %d", aligned, n, len(word))
		}
		return nil
	})
	if err != nil && !errdefs.IsKind(err, errdefs.TraceWriteFailed) {
		return errdefs.Wrapf(errdefs.TraceWriteFailed, err, "ptrace poke at %#x", aligned)
	}
	return err
}
