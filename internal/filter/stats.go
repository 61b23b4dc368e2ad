package filter

import (
	"fmt"

	"github.com/opendiamond-go/adiskd/internal/constants"
)

// Stat is one filter's externally reported statistics snapshot, the Go
// analogue of filter_stats_t.
type Stat struct {
	Name          string
	ObjsProcessed int64
	ObjsDropped   int64
	AvgExecTimeNS int64
}

// Set is the ordered collection of filters active in one search, plus the
// conditional pass table they share. It is the Go analogue of
// filter_data_t.
type Set struct {
	Filters []*Descriptor
	Prob    *ProbTable
}

// NewSet builds a filter Set from descriptors, giving each one a fresh
// conditional pass table.
func NewSet(descriptors []*Descriptor) *Set {
	return &Set{
		Filters: descriptors,
		Prob:    NewProbTable(),
	}
}

// ClearStats resets every filter's counters, matching fexec_clear_stats;
// called when a search transitions into RUNNING.
func (s *Set) ClearStats() {
	for _, f := range s.Filters {
		f.Counters.Clear()
	}
}

// GetStats fills out[:len(s.Filters)] with each filter's current
// statistics, truncating names to constants.MaxFilterName-1 bytes the way
// fexec_get_stats NUL-pads fs_name. Returns an error if out is too small,
// matching the original's "i > max" bounds check.
func (s *Set) GetStats(out []Stat) error {
	if len(out) < len(s.Filters) {
		return fmt.Errorf("filter: GetStats buffer too small: have %d, need %d", len(out), len(s.Filters))
	}
	for i, f := range s.Filters {
		name := f.Name
		if len(name) > constants.MaxFilterName-1 {
			name = name[:constants.MaxFilterName-1]
		}
		out[i] = Stat{
			Name:          name,
			ObjsProcessed: f.Counters.Called(),
			ObjsDropped:   f.Counters.Dropped(),
			AvgExecTimeNS: f.Counters.AvgExecTimeNS(),
		}
	}
	return nil
}
