// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/arch/x86/x86asm"

	"golang.org/x/memscan/arch"
	"golang.org/x/memscan/scan"
)

func parseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %v", s, err)
	}
	return addr, nil
}

func mapsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "maps",
		Short: "print the target's memory map with categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			regions, err := s.inv.Filter(s.filter)
			if err != nil {
				return err
			}
			t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
			fmt.Fprintf(t, "start\tend\tperm\tcat\toffset\tpath\t\n")
			for _, r := range regions {
				fmt.Fprintf(t, "%x\t%x\t%s\t%s\t%x\t%s\t\n",
					r.Start, r.End, r.Perms, r.Category, r.Offset, r.Pathname)
			}
			return t.Flush()
		},
	}
}

func readCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read <addr> <len>",
		Short: "hex-dump target memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("bad length %q", args[1])
			}
			buf := make([]byte, n)
			if _, err := s.backend.ReadBytes(addr, buf); err != nil {
				return err
			}
			fmt.Print(hex.Dump(buf))
			return nil
		},
	}
}

func writeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "write <addr> <hexbytes>",
		Short: "write bytes into target memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("bad hex %q: %v", args[1], err)
			}
			if len(data) == 0 {
				return fmt.Errorf("nothing to write")
			}
			if _, err := s.backend.WriteBytes(addr, data); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes at %#x\n", len(data), addr)
			return nil
		},
	}
}

func scanCommand() *cobra.Command {
	var typ, op, a, b string
	var limit int
	cmd := &cobra.Command{
		Use:   "scan --type <t> --op <op> --a <value> [--b <value>]",
		Short: "scan filtered regions for matching values",
		Long: `Scan walks every region selected by --categories and prints the
absolute address of each element matching the predicate.

Types: i8 i16 i32 i64 isize u8 u16 u32 u64 usize f32 f64.
Ops: eq gt ge lt le (take --a), bte bter btel (take --a and --b).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			return runTypedScan(s, typ, op, a, b, limit)
		},
	}
	cmd.Flags().StringVar(&typ, "type", "i32", "element type")
	cmd.Flags().StringVar(&op, "op", "eq", "predicate operator")
	cmd.Flags().StringVar(&a, "a", "", "predicate value (lower bound for ranges)")
	cmd.Flags().StringVar(&b, "b", "", "range upper bound")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many matches (0 = unlimited)")
	return cmd
}

// runTypedScan monomorphises the scan over the named element type.
func runTypedScan(s *session, typ, op, a, b string, limit int) error {
	switch typ {
	case "i8":
		return scanSigned[int8](s, op, a, b, limit)
	case "i16":
		return scanSigned[int16](s, op, a, b, limit)
	case "i32":
		return scanSigned[int32](s, op, a, b, limit)
	case "i64":
		return scanSigned[int64](s, op, a, b, limit)
	case "isize":
		return scanSigned[int](s, op, a, b, limit)
	case "u8":
		return scanUnsigned[uint8](s, op, a, b, limit)
	case "u16":
		return scanUnsigned[uint16](s, op, a, b, limit)
	case "u32":
		return scanUnsigned[uint32](s, op, a, b, limit)
	case "u64":
		return scanUnsigned[uint64](s, op, a, b, limit)
	case "usize":
		return scanUnsigned[uint](s, op, a, b, limit)
	case "f32":
		return scanFloat[float32](s, op, a, b, limit)
	case "f64":
		return scanFloat[float64](s, op, a, b, limit)
	}
	return fmt.Errorf("unknown element type %q", typ)
}

func scanSigned[T ~int8 | ~int16 | ~int32 | ~int64 | ~int](s *session, op, a, b string, limit int) error {
	av, bv, err := parseBounds(op, a, b, func(v string) (T, error) {
		n, err := strconv.ParseInt(v, 0, 64)
		return T(n), err
	})
	if err != nil {
		return err
	}
	return runScan(s, op, av, bv, limit)
}

func scanUnsigned[T ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint](s *session, op, a, b string, limit int) error {
	av, bv, err := parseBounds(op, a, b, func(v string) (T, error) {
		n, err := strconv.ParseUint(v, 0, 64)
		return T(n), err
	})
	if err != nil {
		return err
	}
	return runScan(s, op, av, bv, limit)
}

func scanFloat[T ~float32 | ~float64](s *session, op, a, b string, limit int) error {
	av, bv, err := parseBounds(op, a, b, func(v string) (T, error) {
		f, err := strconv.ParseFloat(v, 64)
		return T(f), err
	})
	if err != nil {
		return err
	}
	return runScan(s, op, av, bv, limit)
}

// parseBounds parses the predicate value(s) an operator needs.
func parseBounds[T scan.Element](op, a, b string, parse func(string) (T, error)) (av, bv T, err error) {
	if a == "" {
		return av, bv, fmt.Errorf("--a is required")
	}
	if av, err = parse(a); err != nil {
		return av, bv, fmt.Errorf("bad value %q: %v", a, err)
	}
	switch op {
	case "bte", "bter", "btel":
		if b == "" {
			return av, bv, fmt.Errorf("--b is required for range operator %q", op)
		}
		if bv, err = parse(b); err != nil {
			return av, bv, fmt.Errorf("bad value %q: %v", b, err)
		}
	}
	return av, bv, nil
}

func makePredicate[T scan.Element](op string, a, b T) (scan.Predicate[T], error) {
	switch op {
	case "eq":
		return scan.Eq(a), nil
	case "gt":
		return scan.Gt(a), nil
	case "ge":
		return scan.Ge(a), nil
	case "lt":
		return scan.Lt(a), nil
	case "le":
		return scan.Le(a), nil
	case "bte":
		return scan.Bte(a, b), nil
	case "bter":
		return scan.Bter(a, b), nil
	case "btel":
		return scan.Btel(a, b), nil
	}
	return scan.Predicate[T]{}, fmt.Errorf("unknown operator %q", op)
}

func runScan[T scan.Element](s *session, op string, a, b T, limit int) error {
	p, err := makePredicate(op, a, b)
	if err != nil {
		return err
	}
	count := 0
	err = scan.ForEach(s.inv, s.backend, p, scan.Options{Filter: s.filter, ChunkSize: s.chunk},
		func(addr uint64) bool {
			fmt.Printf("%#x\n", addr)
			count++
			return limit == 0 || count < limit
		})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d matches\n", count)
	return nil
}

func disasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <addr> <len>",
		Short: "disassemble code bytes from the target (x86 only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("bad length %q", args[1])
			}
			buf := make([]byte, n)
			if _, err := s.backend.ReadBytes(addr, buf); err != nil {
				return err
			}
			mode := arch.Host().PointerSize * 8
			for off := 0; off < len(buf); {
				inst, err := x86asm.Decode(buf[off:], mode)
				if err != nil {
					fmt.Printf("%#x: .byte %#02x\n", addr+uint64(off), buf[off])
					off++
					continue
				}
				fmt.Printf("%#x: %s\n", addr+uint64(off), x86asm.GoSyntax(inst, addr+uint64(off), nil))
				off += inst.Len
			}
			return nil
		},
	}
}
