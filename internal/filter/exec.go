package filter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/opendiamond-go/adiskd/internal/constants"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
	"github.com/opendiamond-go/adiskd/internal/object"
)

// Child is one spawned filter process and its RPC pipes. One Child exists
// per filter kind per search, matching spec §4.4's "isolated child process
// spawned once per search per filter kind".
type Child struct {
	desc *Descriptor
	cmd  *exec.Cmd
	in   io.WriteCloser
	out  *bufio.Reader
}

// StartChild launches the external program implementing desc, passing
// desc.Args as its command-line arguments. name is the executable path
// (e.g. a dispatcher that loads desc.Signature's filter code).
func StartChild(ctx context.Context, name string, desc *Descriptor) (*Child, error) {
	cmd := exec.CommandContext(ctx, name, desc.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("filter %s: stdin pipe: %w", desc.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("filter %s: stdout pipe: %w", desc.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("filter %s: start: %w", desc.Name, err)
	}

	return &Child{
		desc: desc,
		cmd:  cmd,
		in:   stdin,
		out:  bufio.NewReader(stdout),
	}, nil
}

// Call sends one object to the child and returns its integer score. The
// payload goes first as a blob record, then attrValues (the attributes
// desc.ReadAttrs resolved to, as alternating name and value strings) as a
// str-array record.
func (c *Child) Call(payload []byte, attrValues []string) (score int64, err error) {
	if err := WriteRecord(c.in, BlobRecord(payload)); err != nil {
		return 0, fmt.Errorf("filter %s: write payload: %w", c.desc.Name, err)
	}
	if err := WriteRecord(c.in, StrArrayRecord(attrValues)); err != nil {
		return 0, fmt.Errorf("filter %s: write attrs: %w", c.desc.Name, err)
	}

	rec, err := ReadRecord(c.out)
	if err != nil {
		return 0, fmt.Errorf("filter %s: read result: %w", c.desc.Name, err)
	}
	if rec.Tag != TagInt {
		return 0, fmt.Errorf("filter %s: expected int result, got tag %q", c.desc.Name, rec.Tag)
	}
	var v int64
	if _, err := fmt.Sscanf(string(rec.Payload), "%d", &v); err != nil {
		return 0, fmt.Errorf("filter %s: malformed int result %q", c.desc.Name, rec.Payload)
	}
	return v, nil
}

// Stop sends an end frame and waits up to constants.FilterGraceTimeout for
// the child to exit before killing it outright, matching spec §4.4/§5's
// "end frame, then grace window, then kill" shutdown sequence.
func (c *Child) Stop() error {
	_ = WriteRecord(c.in, EndRecord())
	_ = c.in.Close()

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(constants.FilterGraceTimeout):
		_ = c.cmd.Process.Kill()
		<-done
		return fmt.Errorf("filter %s: killed after grace timeout", c.desc.Name)
	}
}

// Caller is the subset of Child's behavior the executor depends on, so
// tests can substitute an in-process fake instead of spawning real filter
// programs.
type Caller interface {
	Call(payload []byte, attrValues []string) (int64, error)
}

// Executor runs one object through the active permutation of a search's
// filter set, stopping at the first drop and updating stats and the
// conditional pass table after every filter call, grounded on spec
// §4.4's per-object filter chain.
type Executor struct {
	set      *Set
	children map[ID]Caller
	log      interfaces.Logger
	metrics  interfaces.MetricsRecorder
}

// NewExecutor builds an executor over set's filters, using children
// (already-started, one per active filter id).
func NewExecutor(set *Set, children map[ID]Caller, log interfaces.Logger) *Executor {
	return &Executor{set: set, children: children, log: log}
}

// SetMetrics attaches a process-wide metrics recorder; every filter call
// RunOne makes afterward reports its latency through it. Left unset, RunOne
// still updates each filter's own Counters.
func (e *Executor) SetMetrics(m interfaces.MetricsRecorder) {
	e.metrics = m
}

// Result reports the outcome of running one object through the permutation.
type Result struct {
	Passed      bool
	DroppedBy   ID
	DroppedName string
}

// RunOne executes perm against obj in order. On a filter returning zero,
// or a nonzero score below its threshold, the chain stops, that filter's
// drop counter increments, and Result.Passed is false. On reaching the end, every
// filter's pass counter reflects the run and Result.Passed is true.
// UpdateProb is called once per filter with the prefix of filters that
// ran before it in this permutation.
func (e *Executor) RunOne(perm Permutation, obj *object.Object) (Result, error) {
	var prefix []ID

	for _, fid := range perm {
		desc := e.set.Filters[fid]
		child, ok := e.children[fid]
		if !ok {
			return Result{}, fmt.Errorf("filter executor: no child process for filter %q", desc.Name)
		}

		attrValues := readAttrValues(obj, desc.ReadAttrs)

		start := time.Now()
		score, err := child.Call(obj.Payload, attrValues)
		elapsed := time.Since(start)

		if err != nil {
			return Result{}, fmt.Errorf("filter executor: %w", err)
		}

		passed := score != 0 && score >= int64(desc.Threshold)
		desc.Counters.RecordCall(elapsed.Nanoseconds(), passed)
		if e.metrics != nil {
			e.metrics.RecordFilterCall(uint64(elapsed.Nanoseconds()))
		}
		e.set.Prob.UpdateProb(fid, prefix, passed)

		if !passed {
			return Result{DroppedBy: fid, DroppedName: desc.Name}, nil
		}
		prefix = append(prefix, fid)
	}

	return Result{Passed: true}, nil
}

func readAttrValues(obj *object.Object, names []string) []string {
	out := make([]string, 0, len(names)*2)
	for _, name := range names {
		v, ok := obj.Attrs.Get(name)
		if !ok {
			continue
		}
		out = append(out, name, string(v))
	}
	return out
}
