package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/che-burashco/sorbet/internal/counters"
	"github.com/che-burashco/sorbet/internal/statsd"
	"github.com/che-burashco/sorbet/typecheck"
)

// checkCommand implements `sorbet check`. Returns the process exit code.
func checkCommand(args []string) int {
	flags := flag.NewFlagSet("check", flag.ExitOnError)
	workers := flags.Int("workers", 0, "worker goroutines (0 = NumCPU)")
	statsdAddr := flags.String("statsd", "", "statsd host:port to export counters to")
	prefix := flags.String("prefix", "sorbet", "statsd metric namespace")
	clientVersion := flags.String("client-version", "", "announced editor-client version to validate")
	verbose := flags.Bool("v", false, "debug logging")
	flags.Parse(args)

	if flags.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "check: no paths given")
		return 1
	}

	level := hclog.Info
	if *verbose {
		level = hclog.Debug
	}
	log := hclog.New(&hclog.LoggerOptions{Name: "sorbet", Level: level})

	if *clientVersion != "" && !typecheck.CompatibleWith(*clientVersion) {
		log.Error("incompatible client version",
			"client", *clientVersion, "minimum", typecheck.MinClientVersion)
		return 1
	}

	paths, err := collectFiles(flags.Args())
	if err != nil {
		log.Error("collecting input files", "error", err)
		return 1
	}
	if len(paths) == 0 {
		log.Warn("no source files found", "args", flags.Args())
		return 0
	}

	stats := counters.New()
	checker := typecheck.New(typecheck.Options{
		Logger:   log,
		Workers:  *workers,
		Counters: stats,
		CheckFile: func(path string) error {
			contents, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			stats.Add("types.input.bytes", int64(len(contents)))
			return nil
		},
	})

	start := time.Now()
	checker.Check(paths)
	log.Info("typecheck finished", "files", len(paths), "duration", time.Since(start))

	if *statsdAddr != "" {
		if err := statsd.SubmitCounters(stats.Snapshot(), *statsdAddr, *prefix, log); err != nil {
			log.Warn("statsd export failed", "error", err)
		}
	}
	return 0
}

// collectFiles expands the argument list: files are taken as given,
// directories are walked for .rb sources.
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".rb" {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}
