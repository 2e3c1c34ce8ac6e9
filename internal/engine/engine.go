// Package engine invokes the external geophysical processing engine (SNAP's
// gpt) as a subordinate process, one synchronous invocation per pipeline
// stage.
package engine

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/banshee-data/sar-ard/internal/monitoring"
)

// Param is one -P key/value parameter of an engine invocation. Parameters are
// kept ordered so invocations render reproducibly.
type Param struct {
	Key   string
	Value string
}

// Invocation describes a single engine run for one stage. Either Graph (a
// processing-graph XML) or Operator (a named engine operator) is set, never
// both.
type Invocation struct {
	Stage    string
	Graph    string
	Operator string
	Params   []Param
	Target   string   // -t output prefix, operator invocations only
	Sources  []string // trailing source products
	LogPath  string
}

// Engine is the narrow capability the pipeline depends on: run one stage
// synchronously and report the raw exit status. Implementations never
// interpret the exit code or inspect the output product; that is the artifact
// store's job.
type Engine interface {
	Invoke(inv Invocation) (exitCode int, err error)
}

// GPT runs invocations through SNAP's gpt command-line tool.
type GPT struct {
	// Bin is the path of the gpt executable.
	Bin string

	// Quantity is the engine's internal thread count (-q). It is an
	// explicit tuning parameter rather than detected from the host, so
	// co-scheduled runs can be throttled.
	Quantity int
}

// NewGPT returns a GPT engine. A quantity of zero or less falls back to 1.
func NewGPT(bin string, quantity int) *GPT {
	if quantity < 1 {
		quantity = 1
	}
	return &GPT{Bin: bin, Quantity: quantity}
}

// Args renders the gpt argument list for an invocation.
func (g *GPT) Args(inv Invocation) []string {
	args := make([]string, 0, 8+2*len(inv.Params))
	if inv.Graph != "" {
		args = append(args, inv.Graph)
	} else {
		args = append(args, inv.Operator)
	}
	args = append(args, "-x", "-q", strconv.Itoa(g.Quantity))
	for _, p := range inv.Params {
		args = append(args, "-P"+p.Key+"="+p.Value)
	}
	if inv.Target != "" {
		args = append(args, "-t", inv.Target)
	}
	args = append(args, inv.Sources...)
	return args
}

// Invoke runs gpt and blocks until it terminates, streaming the engine's
// combined stdout/stderr to the invocation's log file. The returned exit code
// is the raw process status; a non-zero code is not an error at this layer.
func (g *GPT) Invoke(inv Invocation) (int, error) {
	logFile, err := os.Create(inv.LogPath)
	if err != nil {
		return -1, fmt.Errorf("create stage log %s: %w", inv.LogPath, err)
	}
	defer logFile.Close()

	cmd := exec.Command(g.Bin, g.Args(inv)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	monitoring.Logf("engine: %s %v", g.Bin, cmd.Args[1:])

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("invoke engine for %s: %w", inv.Stage, err)
	}
	return 0, nil
}
