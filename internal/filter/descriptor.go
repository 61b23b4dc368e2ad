// Package filter implements the filter descriptor and its runtime
// statistics, the conditional pass-probability table, the filter executor
// (out-of-process RPC to a child filter program), and the permutation
// optimizer. It is grounded on the original adiskd's
// src/lib/libfilterexec/fexec_stats.c and its surrounding filter_priv.h
// data model.
package filter

import (
	"sync/atomic"
)

// ID identifies a filter within one search's active filter set; it is the
// index of the filter in Descriptor slice order, matching the original's
// filter_id_t.
type ID int

// Descriptor names and configures one filter in a search specification.
type Descriptor struct {
	Name      string
	Signature []byte   // content hash identifying the filter's code/version
	Args      []string // command-line style arguments passed to the filter child
	ReadAttrs []string // attribute names this filter reads from the object
	Threshold int      // pass/drop is score != 0 && score >= Threshold; 0 always drops (spec §4.4)

	Counters Counters
}

// Counters are the per-filter runtime statistics the original keeps as
// fi_called/fi_drop/fi_pass/fi_time_ns. They are written only by the
// single filter-worker goroutine owning a search and read by GetStats, so
// plain atomics (rather than a mutex) are enough.
type Counters struct {
	called  atomic.Int64
	dropped atomic.Int64
	passed  atomic.Int64
	timeNS  atomic.Int64
}

// RecordCall updates the counters for one invocation of the filter: elapsed
// is the wall-clock time the call took, and passed reports whether the
// object's score cleared the filter's threshold.
func (c *Counters) RecordCall(elapsedNS int64, passed bool) {
	c.called.Add(1)
	c.timeNS.Add(elapsedNS)
	if passed {
		c.passed.Add(1)
	} else {
		c.dropped.Add(1)
	}
}

// Clear resets every counter to zero, mirroring fexec_clear_stats at the
// start of a new search.
func (c *Counters) Clear() {
	c.called.Store(0)
	c.dropped.Store(0)
	c.passed.Store(0)
	c.timeNS.Store(0)
}

// Called, Dropped, Passed, and TimeNS return the current counter values.
func (c *Counters) Called() int64  { return c.called.Load() }
func (c *Counters) Dropped() int64 { return c.dropped.Load() }
func (c *Counters) Passed() int64  { return c.passed.Load() }
func (c *Counters) TimeNS() int64  { return c.timeNS.Load() }

// AvgExecTimeNS returns the mean per-call execution time, or 0 if the
// filter has never been called, matching fexec_get_stats's fs_avg_exec_time.
func (c *Counters) AvgExecTimeNS() int64 {
	called := c.called.Load()
	if called == 0 {
		return 0
	}
	return c.timeNS.Load() / called
}
