package adiskd

import (
	"sync"

	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
)

// StubCaller is a filter.Caller fake that returns scores from a fixed
// sequence, repeating the last value once exhausted, and counts calls.
// Useful for driving internal/filter.Executor without spawning a real
// child process.
type StubCaller struct {
	mu     sync.Mutex
	scores []int64
	calls  int
}

// NewStubCaller builds a StubCaller returning scores in order.
func NewStubCaller(scores ...int64) *StubCaller {
	return &StubCaller{scores: scores}
}

// Call implements filter.Caller.
func (s *StubCaller) Call(payload []byte, attrValues []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.scores) {
		i = len(s.scores) - 1
	}
	s.calls++
	if i < 0 {
		return 0, nil
	}
	return s.scores[i], nil
}

// CallCount reports how many times Call has been invoked.
func (s *StubCaller) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// NewStubExecutor builds an Executor over set, backing every filter in
// it with a StubCaller built from scores[filter index] (missing entries
// default to always-pass, score 1).
func NewStubExecutor(set *filter.Set, scores map[filter.ID][]int64) (*filter.Executor, map[filter.ID]*StubCaller) {
	children := make(map[filter.ID]filter.Caller, len(set.Filters))
	stubs := make(map[filter.ID]*StubCaller, len(set.Filters))
	for i := range set.Filters {
		id := filter.ID(i)
		s := NewStubCaller(scores[id]...)
		if len(scores[id]) == 0 {
			s = NewStubCaller(1)
		}
		children[id] = s
		stubs[id] = s
	}
	return filter.NewExecutor(set, children, nil), stubs
}

// StubObserver records every callback invocation for test assertions,
// the Go analogue of the teacher's MockBackend call-count tracking.
type StubObserver struct {
	mu        sync.Mutex
	completed []string
	dropped   []string
	errored   []error
}

// NewStubObserver returns an empty StubObserver.
func NewStubObserver() *StubObserver {
	return &StubObserver{}
}

func (o *StubObserver) OnObjectComplete(sessionID, objectName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, objectName)
}

func (o *StubObserver) OnObjectDropped(sessionID, objectName, filterName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, objectName)
}

func (o *StubObserver) OnSearchError(sessionID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errored = append(o.errored, err)
}

// Completed returns the names of every object reported complete.
func (o *StubObserver) Completed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.completed...)
}

// Dropped returns the names of every object reported dropped.
func (o *StubObserver) Dropped() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.dropped...)
}

// Errors returns every error reported through OnSearchError.
func (o *StubObserver) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errored...)
}

var _ interfaces.Observer = (*StubObserver)(nil)
