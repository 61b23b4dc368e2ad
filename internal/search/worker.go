package search

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opendiamond-go/adiskd/internal/constants"
	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
	"github.com/opendiamond-go/adiskd/internal/object"
	"github.com/opendiamond-go/adiskd/internal/ring"
)

// Rings is the three-ring set a running search owns: objects in from the
// store, partial results out, and completed objects out. Matches spec
// §3's cstate ring triad.
type Rings struct {
	Object   *ring.Ring
	Partial  *ring.Ring
	Complete *ring.Ring
}

// NewRings allocates the three rings at capacity.
func NewRings(capacity int) *Rings {
	return &Rings{
		Object:   ring.New(capacity),
		Partial:  ring.New(capacity),
		Complete: ring.New(capacity),
	}
}

// optimizerBatchSize is how many objects the worker drains between calls
// to Optimizer.Step, so permutation swaps only ever happen at an object
// boundary (invariant i) without re-evaluating on every single object.
const optimizerBatchSize = 32

// RunWorkers starts the three per-search goroutines spec §5 requires —
// object feeder, filter worker, and the transport tx thread that drains
// Rings.Complete/Rings.Partial and hands each object to release —
// coordinated with errgroup so a failure in one stops the others and is
// reported to the caller, matching the teacher's ioLoop/processRequests
// pattern of one goroutine per concern joined on a shared context.
// metrics, if non-nil, receives a RecordObject call for every terminal
// object outcome, alongside exec's own per-filter-call RecordFilterCall
// reporting. release, if nil, is a no-op.
func RunWorkers(ctx context.Context, st *State, it *object.Iterator, exec *filter.Executor, rings *Rings, obs interfaces.Observer, metrics interfaces.MetricsRecorder, release func(obj *object.Object)) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return feedObjects(gctx, st, it, rings)
	})
	g.Go(func() error {
		return runFilters(gctx, st, exec, rings, obs, metrics)
	})
	g.Go(func() error {
		return runTx(gctx, st, rings, release)
	})

	return g.Wait()
}

// feedObjects reads from the object store iterator and enqueues onto the
// object ring until the iterator is exhausted or the context is
// cancelled. Enqueue is non-blocking; a full ring increments
// network_stalls and the feeder retries after a short backoff, mirroring
// spec §5's "suspension points are non-blocking, callers retry" rule.
// Exhausting the iterator moves the search RUNNING→DRAINING (spec §4.6),
// so runFilters and runTx know to drain and stop rather than spin
// forever against a ring that will never see another object.
func feedObjects(ctx context.Context, st *State, it *object.Iterator, rings *Rings) error {
	const producerID = 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		obj, ok := it.Next()
		if !ok {
			st.MarkDraining()
			return nil
		}
		st.Counters.ObjTotal.Add(1)

		for !rings.Object.Enq(obj, producerID) {
			st.Counters.NetworkStalls.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(constants.RingRetryBackoff):
			}
		}
	}
}

// runFilters dequeues objects from the object ring, runs them through the
// executor's current permutation, and routes the result to the complete
// ring (on a full pass) while updating counters; it calls Optimizer.Step
// every optimizerBatchSize objects, strictly between object iterations.
// It returns once the ring is empty and the search has moved to DRAINING,
// rather than looping forever on an object ring that will stay empty.
func runFilters(ctx context.Context, st *State, exec *filter.Executor, rings *Rings, obs interfaces.Observer, metrics interfaces.MetricsRecorder) error {
	const producerID = 1
	var sinceStep int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, ok := rings.Object.Deq()
		if !ok {
			if st.Phase() == Draining {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(constants.RingRetryBackoff):
			}
			continue
		}
		obj := raw.(*object.Object)

		perm := st.Perm.Current()
		res, err := exec.RunOne(perm, obj)
		if err != nil {
			st.Counters.ObjSkipped.Add(1)
			if metrics != nil {
				metrics.RecordObject(false, false, true)
			}
			if obs != nil {
				obs.OnSearchError(st.SessionID, err)
			}
			continue
		}
		st.Counters.ObjProcessed.Add(1)

		if res.Passed {
			st.Counters.ObjPassed.Add(1)
			if metrics != nil {
				metrics.RecordObject(true, false, false)
			}
			for !rings.Complete.Enq(obj, producerID) {
				st.Counters.TxFullStalls.Add(1)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(constants.RingRetryBackoff):
				}
			}
			if obs != nil {
				obs.OnObjectComplete(st.SessionID, obj.Name)
			}
		} else {
			st.Counters.ObjDropped.Add(1)
			if metrics != nil {
				metrics.RecordObject(false, true, false)
			}
			if obs != nil {
				obs.OnObjectDropped(st.SessionID, obj.Name, res.DroppedName)
			}
		}

		sinceStep++
		if sinceStep >= optimizerBatchSize {
			st.Perm.Step(st.Filters)
			st.Split.Update(rings.Object.Count())
			sinceStep = 0
		}
	}
}

// runTx is the transport tx thread: it continuously dequeues from the
// complete and partial rings and hands each object to release (the
// transport layer's hook for writing the result to the bound data
// connection), so runFilters's own enqueue onto Rings.Complete never
// blocks forever once a search passes more than DefaultRingCapacity-1
// objects with nothing else draining them. It exits once the search has
// moved to DRAINING and both rings are empty.
func runTx(ctx context.Context, st *State, rings *Rings, release func(obj *object.Object)) error {
	if release == nil {
		release = func(*object.Object) {}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		drained := false
		if item, ok := rings.Complete.Deq(); ok {
			release(item.(*object.Object))
			drained = true
		}
		if item, ok := rings.Partial.Deq(); ok {
			release(item.(*object.Object))
			drained = true
		}
		if drained {
			continue
		}

		if st.Phase() == Draining && rings.Complete.Empty() && rings.Partial.Empty() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(constants.RingRetryBackoff):
		}
	}
}

// FlushAll drains every remaining item from the complete ring, then the
// partial ring, handing each to release, the transport's release_obj_cb
// equivalent. Called on the DRAINING→IDLE transition. Complete drains
// first, matching sstub_flush_objs.
func FlushAll(rings *Rings, release func(obj *object.Object)) {
	for _, r := range []*ring.Ring{rings.Complete, rings.Partial} {
		for _, item := range r.DrainAll() {
			release(item.(*object.Object))
		}
	}
}
