// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The memscan tool is a command-line front-end for inspecting and
// scanning the memory of another live process.
// Run "memscan help" for a list of commands.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"golang.org/x/memscan/mem"
	"golang.org/x/memscan/proc"
	"golang.org/x/memscan/scan"
)

// Config is the optional YAML configuration file. Flag values override
// anything set here.
type Config struct {
	// Backend selects the default access backend: proc, vm or trace.
	Backend string `yaml:"backend"`
	// ChunkSize is the scan read granularity in bytes.
	ChunkSize int `yaml:"chunk_size"`
	// Categories restricts scans to regions with these category tags
	// ("Ch", "Jh", "A", ...). Empty means all regions.
	Categories []string `yaml:"categories"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{Backend: "proc", ChunkSize: scan.DefaultChunkSize}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %v", path, err)
	}
	if cfg.Backend == "" {
		cfg.Backend = "proc"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = scan.DefaultChunkSize
	}
	return cfg, nil
}

var (
	flagPid        int
	flagBackend    string
	flagConfig     string
	flagChunk      int
	flagCategories []string

	cfg Config
)

// session bundles what every command needs: the target's inventory and
// an access backend, built from flags and config.
type session struct {
	inv     *proc.Inventory
	backend mem.ReadWriter
	chunk   int
	filter  func(proc.Region) bool
}

func newSession() (*session, error) {
	if flagPid <= 0 {
		return nil, fmt.Errorf("--pid is required and must be positive")
	}
	name := cfg.Backend
	if flagBackend != "" {
		name = flagBackend
	}
	method, ok := mem.MethodByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (want proc, vm or trace)", name)
	}
	backend := mem.New(method, flagPid)
	if pm, ok := backend.(*mem.ProcMem); ok {
		if err := pm.Open(); err != nil {
			return nil, err
		}
	}
	glog.V(1).Infof("pid %d via %s backend", flagPid, method)

	chunk := cfg.ChunkSize
	if flagChunk > 0 {
		chunk = flagChunk
	}
	cats := cfg.Categories
	if len(flagCategories) > 0 {
		cats = flagCategories
	}
	var filter func(proc.Region) bool
	if len(cats) > 0 {
		var parsed []proc.Category
		for _, tag := range cats {
			c, ok := proc.CategoryByName(tag)
			if !ok {
				return nil, fmt.Errorf("unknown category tag %q", tag)
			}
			parsed = append(parsed, c)
		}
		filter = proc.ByCategory(parsed...)
	}
	return &session{
		inv:     proc.NewInventory(flagPid),
		backend: backend,
		chunk:   chunk,
		filter:  filter,
	}, nil
}

func (s *session) close() {
	if c, ok := s.backend.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			glog.Warningf("closing backend: %v", err)
		}
	}
}

func main() {
	root := &cobra.Command{
		Use:           "memscan",
		Short:         "inspect and scan the memory of a live process",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog checks the standard flag set was parsed; cobra
			// already consumed the grafted flags.
			goflag.CommandLine.Parse(nil)
			var err error
			cfg, err = loadConfig(flagConfig)
			return err
		},
	}
	pf := root.PersistentFlags()
	pf.IntVar(&flagPid, "pid", 0, "target process id")
	pf.StringVar(&flagBackend, "backend", "", "access backend: proc, vm or trace")
	pf.StringVar(&flagConfig, "config", "", "YAML config file")
	pf.IntVar(&flagChunk, "chunk", 0, "scan read granularity in bytes")
	pf.StringSliceVar(&flagCategories, "categories", nil, "region category tags to scan (e.g. Ch,Jh,A)")
	// glog registers its flags (-v, -logtostderr, ...) on the standard
	// flag set; graft them onto cobra's.
	pf.AddGoFlagSet(goflag.CommandLine)

	root.AddCommand(
		mapsCommand(),
		readCommand(),
		writeCommand(),
		scanCommand(),
		disasmCommand(),
		interactiveCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "memscan: %v\n", err)
		os.Exit(1)
	}
}
