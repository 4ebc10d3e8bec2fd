// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/memscan/errdefs"
)

// pageSize is the smallest page size we expect from the kernel. Every
// mapping starts and ends at a multiple of it.
const pageSize = 4096

// ParseLine parses one line of the kernel's per-process map table:
//
//	<start>-<end> <rwxp> <offset> <major>:<minor> <inode>[ <pathname>]
//
// start, end, offset, major and minor are hexadecimal, inode is
// decimal. The pathname is the remainder of the line after the inode
// token, trimmed; it may contain embedded spaces and Unicode. The
// returned Region has no Category assigned; classification needs the
// previous region's verdict and is done by Parse.
func ParseLine(line string) (Region, error) {
	var r Region

	rangeTok, rest := nextField(line)
	lo, hi, ok := strings.Cut(rangeTok, "-")
	if !ok {
		return r, errdefs.Newf(errdefs.ParseStructure, "malformed address range %q", rangeTok)
	}
	var err error
	r.Start, err = strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return r, errdefs.Wrapf(errdefs.ParseInteger, err, "range start %q", lo)
	}
	r.End, err = strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return r, errdefs.Wrapf(errdefs.ParseInteger, err, "range end %q", hi)
	}
	if r.Start >= r.End {
		return r, errdefs.Newf(errdefs.ParseStructure, "empty address range %q", rangeTok)
	}

	permsTok, rest := nextField(rest)
	if len(permsTok) < 4 {
		return r, errdefs.Newf(errdefs.ParseStructure, "truncated permissions %q", permsTok)
	}
	if permsTok[0] == 'r' {
		r.Perms |= Read
	}
	if permsTok[1] == 'w' {
		r.Perms |= Write
	}
	if permsTok[2] == 'x' {
		r.Perms |= Exec
	}
	if permsTok[3] == 's' {
		r.Perms |= Shared
	}

	offTok, rest := nextField(rest)
	if offTok == "" {
		return r, errdefs.New(errdefs.ParseStructure, "missing offset field")
	}
	r.Offset, err = strconv.ParseUint(offTok, 16, 64)
	if err != nil {
		return r, errdefs.Wrapf(errdefs.ParseInteger, err, "offset %q", offTok)
	}

	devTok, rest := nextField(rest)
	major, minor, ok := strings.Cut(devTok, ":")
	if !ok {
		return r, errdefs.Newf(errdefs.ParseStructure, "malformed device %q", devTok)
	}
	maj, err := strconv.ParseUint(major, 16, 32)
	if err != nil {
		return r, errdefs.Wrapf(errdefs.ParseInteger, err, "device major %q", major)
	}
	mnr, err := strconv.ParseUint(minor, 16, 32)
	if err != nil {
		return r, errdefs.Wrapf(errdefs.ParseInteger, err, "device minor %q", minor)
	}
	r.DevMajor, r.DevMinor = uint32(maj), uint32(mnr)

	inodeTok, rest := nextField(rest)
	if inodeTok == "" {
		return r, errdefs.New(errdefs.ParseStructure, "missing inode field")
	}
	r.Inode, err = strconv.ParseUint(inodeTok, 10, 64)
	if err != nil {
		return r, errdefs.Wrapf(errdefs.ParseInteger, err, "inode %q", inodeTok)
	}

	r.Pathname = strings.TrimSpace(rest)
	return r, nil
}

// nextField returns the first whitespace-delimited token of s and the
// remainder after it.
func nextField(s string) (tok, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// FormatLine renders r back into the canonical map-table form. It is
// the inverse of ParseLine for every field except Category, which is
// derived.
func FormatLine(r Region) string {
	line := fmt.Sprintf("%x-%x %s %08x %02x:%02x %d",
		r.Start, r.End, r.Perms.mapsString(), r.Offset, r.DevMajor, r.DevMinor, r.Inode)
	if r.Pathname != "" {
		line += " " + r.Pathname
	}
	return line
}

// Parse reads a whole map table, classifying each region as it goes.
// The classifier's verdict on each region feeds the next one's
// prevCodeData input, so regions must arrive in address order. The
// first malformed line aborts the parse; its error names the
// zero-based line index.
//
// Parse also enforces the inventory invariants: regions sorted by
// start, disjoint, and page-aligned on both ends.
func Parse(rd io.Reader) ([]Region, error) {
	var (
		regions []Region
		prevEnd uint64
		prevCd  bool
		lineIdx int
	)
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			lineIdx++
			continue
		}
		r, err := ParseLine(line)
		if err != nil {
			return nil, errdefs.Wrapf(kindOf(err), err, "line %d", lineIdx)
		}
		if r.Start%pageSize != 0 || r.End%pageSize != 0 {
			return nil, errdefs.Newf(errdefs.ParseStructure, "line %d: region %x-%x not page-aligned", lineIdx, r.Start, r.End)
		}
		if r.Start < prevEnd {
			return nil, errdefs.Newf(errdefs.ParseStructure, "line %d: region %x-%x overlaps previous", lineIdx, r.Start, r.End)
		}
		r.Category = Classify(r.Pathname, r.Perms, r.Offset, prevCd)
		prevCd = r.Category == CData
		prevEnd = r.End
		regions = append(regions, r)
		lineIdx++
	}
	if err := sc.Err(); err != nil {
		return nil, errdefs.Wrapf(errdefs.IO, err, "reading map table at line %d", lineIdx)
	}
	return regions, nil
}

// kindOf preserves the kind of a parse error when wrapping it with the
// line index.
func kindOf(err error) errdefs.Kind {
	if errdefs.IsKind(err, errdefs.ParseInteger) {
		return errdefs.ParseInteger
	}
	return errdefs.ParseStructure
}
