package filter

import "testing"

func TestProbTable_UpdateAndLookup(t *testing.T) {
	pt := NewProbTable()
	pt.UpdateProb(2, []ID{0, 1}, true)
	pt.UpdateProb(2, []ID{0, 1}, false)

	numExec, numPass, found := pt.Lookup(2, []ID{0, 1})
	if !found {
		t.Fatal("expected entry to be found")
	}
	if numExec != 2 || numPass != 1 {
		t.Fatalf("numExec=%d numPass=%d, want 2,1", numExec, numPass)
	}
}

func TestProbTable_CommutativeInPrevListOrdering(t *testing.T) {
	pt := NewProbTable()
	pt.UpdateProb(2, []ID{0, 1}, true)
	pt.UpdateProb(2, []ID{1, 0}, true)

	numExec, numPass, found := pt.Lookup(2, []ID{1, 0})
	if !found {
		t.Fatal("expected entry to be found regardless of prevIDs ordering")
	}
	if numExec != 2 || numPass != 2 {
		t.Fatalf("numExec=%d numPass=%d, want 2,2 (both updates landed on the same entry)", numExec, numPass)
	}
}

func TestProbTable_UnionEntryRecorded(t *testing.T) {
	pt := NewProbTable()
	pt.UpdateProb(2, []ID{0, 1}, true)

	// the union entry is keyed by InvalidFilterID over {0,1,2}.
	numExec, numPass, found := pt.Lookup(ID(-1), []ID{0, 1, 2})
	if !found {
		t.Fatal("expected union entry to exist")
	}
	if numExec != 1 || numPass != 1 {
		t.Fatalf("union entry numExec=%d numPass=%d, want 1,1", numExec, numPass)
	}
}

func TestProbTable_LookupMissingNotFound(t *testing.T) {
	pt := NewProbTable()
	if _, _, found := pt.Lookup(0, nil); found {
		t.Fatal("expected not-found on empty table")
	}
}

func TestProbTable_SeparateEntriesForDifferentCurFilt(t *testing.T) {
	pt := NewProbTable()
	pt.UpdateProb(0, []ID{5}, true)
	pt.UpdateProb(1, []ID{5}, false)

	_, p0, _ := pt.Lookup(0, []ID{5})
	_, p1, _ := pt.Lookup(1, []ID{5})
	if p0 != 1 || p1 != 0 {
		t.Fatalf("entries for distinct cur_filt leaked into each other: p0=%d p1=%d", p0, p1)
	}
}
