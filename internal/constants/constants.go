// Package constants collects the tunable constants that the original
// OpenDiamond adiskd scattered across headers and #defines. Folding them
// into one place mirrors the teacher's internal/constants package.
package constants

import "time"

// Ring tuning, matching src/lib/libtools/ring.c / ring.h.
const (
	// RateAvgWindow is the W in the enq/deq rate EMA:
	// rate = ((W-1)/W)*rate + (1/W)*instantaneous.
	RateAvgWindow = 16

	// MaxEnqThread bounds the number of distinct producer slots a ring
	// tracks for its enqueue-rate EMA. Producers beyond this count still
	// enqueue correctly; their timing just isn't reflected in enq_rate.
	MaxEnqThread = 32

	// DefaultRingCapacity is the object/partial/complete ring depth a
	// freshly opened search allocates.
	DefaultRingCapacity = 64
)

// Filter descriptor and stats tuning, matching fexec_stats.c / filter_priv.h.
const (
	// MaxFilterName bounds filter names returned by GetStats; longer
	// names are truncated and NUL-padded in the C original, which we
	// mirror by truncating to MaxFilterName-1 bytes.
	MaxFilterName = 64

	// ProbHashBuckets is the fixed power-of-two bucket count for the
	// conditional pass table's hash-bucketed entries.
	ProbHashBuckets = 256

	// InvalidFilterID is the sentinel used to key a conditional pass
	// table entry recording the "union of these filters" statistic,
	// rather than a specific next filter.
	InvalidFilterID = -1
)

// SignificantNumber returns 8*gen, the per-generation call-count threshold
// a filter must clear before a permutation containing it is evaluable.
func SignificantNumber(generation int) int {
	return 8 * generation
}

// SmallFraction is the floor applied to the cumulative pass probability
// during permutation evaluation, so a long chain of near-certain passes
// never collapses a downstream filter's cost to zero.
const SmallFraction = 1e-5

// Split policy defaults, matching search_state.h.
const (
	SplitDefaultType      = SplitTypeFixed
	SplitDefaultRatio     = 100
	SplitDefaultBPThresh  = 15
	SplitDefaultAutoStep  = 5
	SplitDefaultPendLow   = 200
	SplitDefaultPendHigh  = 10
	SplitDefaultMult      = 20
	SplitRatioMin         = 0
	SplitRatioMax         = 100
)

// SplitType selects how much work executes locally vs is offloaded.
type SplitType int

const (
	SplitTypeFixed SplitType = iota
	SplitTypeDynamic
)

// Search state defaults, matching search_state.h.
const (
	DefaultPendMax    = 30
	DefaultWorkahead  = true
	DeviceFlagRunning = 0x01
	DeviceFlagComplete = 0x02
)

// Timing constants governing filter child process lifecycle.
const (
	// FilterGraceTimeout is how long the executor waits for a filter
	// child to exit after an "end" frame before it is killed outright.
	FilterGraceTimeout = 2 * time.Second

	// BackgroundReapInterval is how often the listener's accept loop
	// performs its non-blocking zombie reap.
	BackgroundReapInterval = 250 * time.Millisecond

	// RingRetryBackoff is the pause a worker goroutine takes between
	// retries against a full or empty ring, so a stalled producer or
	// consumer spins at a bounded rate rather than pegging a CPU core.
	RingRetryBackoff = 2 * time.Millisecond
)

// Default network ports, standing in for the original's diamond_get_control_port/
// diamond_get_data_port lookup functions.
const (
	DefaultControlPort = 5872
	DefaultDataPort    = 5873
)

// Object store file naming.
const (
	// AttrFileExt is the suffix identifying an attribute sidecar file,
	// the Go analogue of the original's ATTR_EXT.
	AttrFileExt = ".attr"

	// GIDIndexPrefix is the filename prefix for a group index file:
	// GIDIndexPrefix + 16 uppercase hex digits of the gid.
	GIDIndexPrefix = "gidx."
)
