package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/gidx"
	"github.com/opendiamond-go/adiskd/internal/object"
)

type fixedScoreCaller struct{ score int64 }

func (f *fixedScoreCaller) Call(payload []byte, attrValues []string) (int64, error) {
	return f.score, nil
}

func readyState(t *testing.T, filters []*filter.Descriptor) *State {
	t.Helper()
	st := New("sess-1", nil)
	st.Filters = filter.NewSet(filters)
	st.Perm = filter.NewOptimizer(permOf(len(filters)))
	st.GIDs = []gidx.GID{1}
	if err := st.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := st.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := st.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	return st
}

func permOf(n int) filter.Permutation {
	p := make(filter.Permutation, n)
	for i := range p {
		p[i] = filter.ID(i)
	}
	return p
}

func TestRunFilters_AllPassRouteToComplete(t *testing.T) {
	f0 := &filter.Descriptor{Name: "f0", Threshold: 0}
	st := readyState(t, []*filter.Descriptor{f0})
	exec := filter.NewExecutor(st.Filters, map[filter.ID]filter.Caller{0: &fixedScoreCaller{score: 1}}, nil)

	rings := NewRings(8)
	objs := []*object.Object{
		{Name: "a", Payload: []byte("1"), Attrs: object.NewAttrSet()},
		{Name: "b", Payload: []byte("2"), Attrs: object.NewAttrSet()},
		{Name: "c", Payload: []byte("3"), Attrs: object.NewAttrSet()},
	}
	for i, o := range objs {
		if !rings.Object.Enq(o, i%2) {
			t.Fatalf("failed to seed object ring with %s", o.Name)
		}
	}

	if err := runFilters(context.Background(), st, exec, rings, nil, nil); err != nil {
		t.Fatalf("runFilters: %v", err)
	}

	if st.Counters.ObjPassed.Load() != 3 {
		t.Fatalf("ObjPassed = %d, want 3", st.Counters.ObjPassed.Load())
	}
	if st.Counters.ObjProcessed.Load() != 3 {
		t.Fatalf("ObjProcessed = %d, want 3", st.Counters.ObjProcessed.Load())
	}
	if rings.Complete.Count() != 3 {
		t.Fatalf("Complete ring count = %d, want 3", rings.Complete.Count())
	}
}

func TestRunFilters_DropNeverReachesComplete(t *testing.T) {
	f0 := &filter.Descriptor{Name: "f0", Threshold: 10}
	st := readyState(t, []*filter.Descriptor{f0})
	exec := filter.NewExecutor(st.Filters, map[filter.ID]filter.Caller{0: &fixedScoreCaller{score: 0}}, nil)

	rings := NewRings(8)
	rings.Object.Enq(&object.Object{Name: "a", Payload: []byte("1"), Attrs: object.NewAttrSet()}, 0)

	if err := runFilters(context.Background(), st, exec, rings, nil, nil); err != nil {
		t.Fatalf("runFilters: %v", err)
	}

	if st.Counters.ObjDropped.Load() != 1 {
		t.Fatalf("ObjDropped = %d, want 1", st.Counters.ObjDropped.Load())
	}
	if rings.Complete.Count() != 0 {
		t.Fatal("dropped object should never reach the complete ring")
	}
}

func TestFeedObjects_EnqueuesEveryObjectAndReturnsOnExhaustion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		writeFile(t, dir, name, "payload-"+name)
	}

	it, err := object.NewIterator(dir, nil)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}

	st := New("sess-1", nil)
	rings := NewRings(8)
	if err := feedObjects(context.Background(), st, it, rings); err != nil {
		t.Fatalf("feedObjects: %v", err)
	}

	if rings.Object.Count() != 3 {
		t.Fatalf("Object ring count = %d, want 3", rings.Object.Count())
	}
	if st.Counters.ObjTotal.Load() != 3 {
		t.Fatalf("ObjTotal = %d, want 3", st.Counters.ObjTotal.Load())
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
