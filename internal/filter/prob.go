package filter

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/opendiamond-go/adiskd/internal/constants"
)

// probEntry is one conditional pass-probability observation: how many
// times (curFilt, sorted predecessor set) was executed, and how many of
// those executions passed. It is the Go analogue of filter_prob_t.
type probEntry struct {
	curFilt  ID
	prevIDs  []ID // sorted
	numExec  int64
	numPass  int64
}

func sameKey(a *probEntry, curFilt ID, prevIDs []ID) bool {
	if a.curFilt != curFilt || len(a.prevIDs) != len(prevIDs) {
		return false
	}
	for i := range prevIDs {
		if a.prevIDs[i] != prevIDs[i] {
			return false
		}
	}
	return true
}

// ProbTable is the conditional pass table of spec §3/§4.3: a mapping from
// (current filter id, sorted predecessor set) to (num_exec, num_pass).
// Lookup is by bucketed hash; each bucket carries its own lock, the
// sharded-lock pattern the teacher's in-memory backend uses for its
// byte-range shards, repurposed here for hash-table shards so concurrent
// UpdateProb calls on keys in different buckets never contend on one mutex.
type ProbTable struct {
	buckets [constants.ProbHashBuckets]struct {
		mu      sync.RWMutex
		entries []*probEntry
	}
}

// NewProbTable returns an empty conditional pass table.
func NewProbTable() *ProbTable {
	return &ProbTable{}
}

// hashBucket computes a deterministic bucket index for (curFilt, prevIDs),
// replacing the original fexec_hash_prob stub (which always returned 0,
// collapsing every entry into a single bucket with O(n) lookup). Hashing
// on the full tuple restores real O(1) amortized lookup without changing
// the logical key space the stub's callers relied on.
func hashBucket(curFilt ID, prevIDs []ID) uint64 {
	buf := make([]byte, 8*(1+len(prevIDs)))
	binary.BigEndian.PutUint64(buf[:8], uint64(curFilt))
	for i, id := range prevIDs {
		binary.BigEndian.PutUint64(buf[8*(i+1):8*(i+2)], uint64(id))
	}
	return xxhash.Sum64(buf) % constants.ProbHashBuckets
}

func sortedCopy(ids []ID) []ID {
	out := make([]ID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *ProbTable) lookup(curFilt ID, sortedPrev []ID) *probEntry {
	b := &t.buckets[hashBucket(curFilt, sortedPrev)]
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if sameKey(e, curFilt, sortedPrev) {
			return e
		}
	}
	return nil
}

func (t *ProbTable) lookupOrCreate(curFilt ID, sortedPrev []ID) *probEntry {
	b := &t.buckets[hashBucket(curFilt, sortedPrev)]

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if sameKey(e, curFilt, sortedPrev) {
			return e
		}
	}
	e := &probEntry{curFilt: curFilt, prevIDs: sortedPrev}
	b.entries = append(b.entries, e)
	return e
}

// Lookup returns the (numExec, numPass, found) triple for (curFilt,
// prevIDs); prevIDs need not be pre-sorted.
func (t *ProbTable) Lookup(curFilt ID, prevIDs []ID) (numExec, numPass int64, found bool) {
	e := t.lookup(curFilt, sortedCopy(prevIDs))
	if e == nil {
		return 0, 0, false
	}
	return e.numExec, e.numPass, true
}

// UpdateProb records one execution of curFilt having run after prevIDs,
// and whether it passed. It is grounded directly on fexec_update_prob:
// the predecessor list is sorted before lookup (so ordering of prevIDs
// never affects which entry is updated — update_prob is commutative in
// prev_list ordering), then a second "union" entry keyed by
// InvalidFilterID over (sortedPrev ∪ {curFilt}) is updated identically,
// used by the optimizer to evaluate sub-permutations.
func (t *ProbTable) UpdateProb(curFilt ID, prevIDs []ID, passed bool) {
	sortedPrev := sortedCopy(prevIDs)

	e := t.lookupOrCreate(curFilt, sortedPrev)
	t.bump(e, passed)

	union := make([]ID, len(sortedPrev)+1)
	copy(union, sortedPrev)
	union[len(sortedPrev)] = curFilt
	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })

	ue := t.lookupOrCreate(ID(constants.InvalidFilterID), union)
	t.bump(ue, passed)
}

func (t *ProbTable) bump(e *probEntry, passed bool) {
	b := &t.buckets[hashBucket(e.curFilt, e.prevIDs)]
	b.mu.Lock()
	defer b.mu.Unlock()
	e.numExec++
	if passed {
		e.numPass++
	}
}
