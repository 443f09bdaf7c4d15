// Package typecheck is the public entry point for embedding the
// typechecker: version and client-compatibility information plus a
// constructor for the checking driver.
package typecheck

import (
	"github.com/hashicorp/go-hclog"

	"github.com/che-burashco/sorbet/internal/counters"
	"github.com/che-burashco/sorbet/internal/lsp"
)

// Options configures a Checker. Zero values get sensible defaults.
type Options struct {
	// Logger receives structured progress events.
	Logger hclog.Logger

	// Workers is the slow-path fan-out width. Defaults to NumCPU.
	Workers int

	// Counters receives per-run metrics; pass one to export them after a
	// run (see internal/statsd).
	Counters *counters.State

	// CheckFile typechecks one file. Defaults to a no-op.
	CheckFile func(path string) error
}

// Checker is a configured typechecking driver.
type Checker struct {
	driver *lsp.Driver
}

// New builds a Checker.
func New(opts Options) *Checker {
	return &Checker{
		driver: lsp.NewDriver(lsp.Options{
			Logger:    opts.Logger,
			Workers:   opts.Workers,
			Counters:  opts.Counters,
			CheckFile: opts.CheckFile,
		}),
	}
}

// Check runs a non-cancelable typecheck over paths, the command-line
// (non-LSP) mode of operation.
func (c *Checker) Check(paths []string) bool {
	return c.driver.Check(paths)
}

// Driver exposes the underlying driver for language-server wiring: slow
// and fast paths, cancellation, preemption scheduling.
func (c *Checker) Driver() *lsp.Driver {
	return c.driver
}
