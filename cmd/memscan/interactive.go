// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func interactiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "interactive prompt for repeated reads and scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			return runInteractive(s)
		},
	}
}

const interactiveHelp = `Commands:
  maps                          show the memory map
  refresh                       re-read the memory map
  read <addr> <len>             hex-dump memory
  write <addr> <hexbytes>       write bytes
  scan <type> <op> <a> [b]      scan for values (types/ops as in "memscan scan")
  help                          this message
  quit                          leave
`

func runInteractive(s *session) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "memscan> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit", "q":
			return nil
		case "help":
			fmt.Print(interactiveHelp)
		case "maps":
			runPrompt(s, func() error { return promptMaps(s) })
		case "refresh":
			runPrompt(s, s.inv.Refresh)
		case "read":
			runPrompt(s, func() error { return promptRead(s, fields[1:]) })
		case "write":
			runPrompt(s, func() error { return promptWrite(s, fields[1:]) })
		case "scan":
			runPrompt(s, func() error { return promptScan(s, fields[1:]) })
		default:
			fmt.Printf("unknown command %q; try help\n", fields[0])
		}
	}
}

func runPrompt(s *session, f func() error) {
	if err := f(); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func promptMaps(s *session) error {
	regions, err := s.inv.Filter(s.filter)
	if err != nil {
		return err
	}
	for _, r := range regions {
		fmt.Printf("%12x-%-12x %s %-2s %s\n", r.Start, r.End, r.Perms, r.Category, r.Pathname)
	}
	return nil
}

func promptRead(s *session, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read <addr> <len>")
	}
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
}

func promptWrite(s *session, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write <addr> <hexbytes>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(args[1])
	if err != nil || len(data) == 0 {
		return fmt.Errorf("bad hex %q", args[1])
	}
	_, err = s.backend.WriteBytes(addr, data)
	return err
}

func promptScan(s *session, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: scan <type> <op> <a> [b]")
	}
	b := ""
	if len(args) > 3 {
		b = args[3]
	}
	return runTypedScan(s, args[0], args[1], args[2], b, 0)
}
