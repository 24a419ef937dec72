// Package logging builds the logr.Logger handed to every component.
//
// Text output keeps the "[component] message" layout used throughout the
// CLI: the logger name becomes the bracketed prefix, and key/value pairs
// follow the message. JSON output is one object per line for log shippers.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Options configures the logger.
type Options struct {
	// Verbosity enables V(n) logs up to and including n.
	Verbosity int
	// JSON switches to one JSON object per line.
	JSON bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a logger according to opts.
func New(opts Options) logr.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	fopts := funcr.Options{Verbosity: opts.Verbosity}

	if opts.JSON {
		// funcr stamps the object itself.
		std := log.New(out, "", 0)
		fopts.LogTimestamp = true
		return funcr.NewJSON(func(obj string) {
			std.Print(obj)
		}, fopts)
	}

	std := log.New(out, "", log.LstdFlags)

	return funcr.New(func(prefix, args string) {
		if prefix == "" {
			std.Print(args)
			return
		}
		std.Printf("[%s] %s", prefix, args)
	}, fopts)
}
