package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/gidx"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
	"github.com/opendiamond-go/adiskd/internal/object"
	"github.com/opendiamond-go/adiskd/internal/search"
)

// Handlers implements the full callback set a control connection
// dispatches to, grounded on the sstub_cb_args_t table read off
// adiskd.c's registration call. One Handlers is shared by every
// connection; per-connection state lives on the ConnState passed in.
type Handlers struct {
	log     interfaces.Logger
	obs     interfaces.Observer
	srv     *search.ServerState
	metrics interfaces.MetricsRecorder
}

// NewHandlers builds the shared callback implementation. srv is used to
// keep the server-wide active-search count in sync with each
// connection's RUNNING/non-RUNNING transitions.
func NewHandlers(log interfaces.Logger, obs interfaces.Observer, srv *search.ServerState) *Handlers {
	return &Handlers{log: log, obs: obs, srv: srv}
}

// SetMetrics attaches a process-wide metrics recorder; every search
// started afterward reports its per-object outcomes and per-filter-call
// latencies through it. Left unset, the atomic per-search/per-filter
// Counters are still updated as usual.
func (h *Handlers) SetMetrics(m interfaces.MetricsRecorder) {
	h.metrics = m
}

// Dispatch routes one control record to the matching handler and returns
// the response record to write back, mirroring the listener's per-record
// callback-table switch.
func (h *Handlers) Dispatch(conn *ConnState, rec ControlRecord) (ControlRecord, error) {
	switch rec.Op {
	case OpSetObj:
		return h.handleSetObj(conn, rec.Payload)
	case OpSetSpec:
		return h.handleSetSpec(conn, rec.Payload)
	case OpSetList:
		return h.handleSetList(conn, rec.Payload)
	case OpSetGID:
		return h.handleSetGID(conn, rec.Payload)
	case OpClearGIDs:
		return h.handleClearGIDs(conn)
	case OpSetBlob:
		return h.handleSetBlob(conn, rec.Payload)
	case OpSetOffload:
		return h.handleSetOffload(conn, rec.Payload)
	case OpStart:
		return h.handleStart(conn)
	case OpStop:
		return h.handleStop(conn)
	case OpTerminate:
		return h.handleTerminate(conn)
	case OpGetStats:
		return h.handleGetStats(conn)
	case OpReleaseObj:
		return h.handleReleaseObj(conn, rec.Payload)
	case OpGetChar:
		return h.handleGetChar(conn)
	case OpLogDone:
		return ControlRecord{Op: OpLogDone}, nil
	case OpSetLog:
		return ControlRecord{Op: OpSetLog}, nil
	case OpReadLeaf, OpWriteLeaf, OpListNode, OpListLeaf:
		return ControlRecord{}, fmt.Errorf("transport: %s: object directory is flat, no search tree to navigate", rec.Op)
	case OpDisconnect:
		return h.handleTerminate(conn)
	default:
		return ControlRecord{}, fmt.Errorf("transport: unrecognized control op %q", rec.Op)
	}
}

// handleSetObj records the object directory path for the search and
// moves it into CONFIGURING.
func (h *Handlers) handleSetObj(conn *ConnState, payload []byte) (ControlRecord, error) {
	dir := string(payload)
	conn.mu.Lock()
	conn.ObjDir = dir
	conn.mu.Unlock()
	if h.srv != nil {
		h.srv.SetObjDir(dir)
	}
	if err := conn.Search.Configure(); err != nil {
		return ControlRecord{}, err
	}
	return ControlRecord{Op: OpSetObj}, nil
}

// handleSetSpec parses a NUL-separated filter-name list into a trivial
// filter set (zero threshold, no declared args) and attaches it to the
// search. The filter spec wire format proper (signature, arguments,
// dependent attrs) isn't detailed at this layer; a fuller encoding would
// extend the payload, tracked as an open question in the design ledger.
func (h *Handlers) handleSetSpec(conn *ConnState, payload []byte) (ControlRecord, error) {
	names := SplitPayload(payload)
	descs := make([]*filter.Descriptor, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		descs = append(descs, &filter.Descriptor{Name: name})
	}
	conn.mu.Lock()
	conn.Search.Filters = filter.NewSet(descs)
	perm := make(filter.Permutation, len(descs))
	for i := range perm {
		perm[i] = filter.ID(i)
	}
	conn.Search.Perm = filter.NewOptimizer(perm)
	conn.mu.Unlock()
	if err := conn.Search.Configure(); err != nil {
		return ControlRecord{}, err
	}
	return ControlRecord{Op: OpSetSpec}, nil
}

// handleSetList replaces the explicit object name list; the flat object
// directory iterator handles the directory-scan case, so an explicit
// list is recorded for the caller to honor but not otherwise interpreted
// here.
func (h *Handlers) handleSetList(conn *ConnState, payload []byte) (ControlRecord, error) {
	conn.mu.Lock()
	conn.ObjList = SplitPayload(payload)
	conn.mu.Unlock()
	return ControlRecord{Op: OpSetList}, nil
}

func (h *Handlers) handleSetGID(conn *ConnState, payload []byte) (ControlRecord, error) {
	g, err := gidx.Parse(strings.TrimSpace(string(payload)))
	if err != nil {
		return ControlRecord{}, fmt.Errorf("transport: sgid: %w", err)
	}
	conn.mu.Lock()
	conn.Search.GIDs = append(conn.Search.GIDs, g)
	conn.mu.Unlock()
	if err := conn.Search.Configure(); err != nil {
		return ControlRecord{}, err
	}
	return ControlRecord{Op: OpSetGID}, nil
}

func (h *Handlers) handleClearGIDs(conn *ConnState) (ControlRecord, error) {
	conn.mu.Lock()
	conn.Search.GIDs = nil
	conn.mu.Unlock()
	return ControlRecord{Op: OpClearGIDs}, nil
}

// handleSetBlob stores an opaque configuration blob on the connection and
// moves the search into CONFIGURING. The blob is kept as ConnState.Blob
// only; nothing passes it on to filter children.
func (h *Handlers) handleSetBlob(conn *ConnState, payload []byte) (ControlRecord, error) {
	conn.mu.Lock()
	conn.Blob = append([]byte(nil), payload...)
	conn.mu.Unlock()
	if err := conn.Search.Configure(); err != nil {
		return ControlRecord{}, err
	}
	return ControlRecord{Op: OpSetBlob}, nil
}

// handleSetOffload pins the search's split ratio to an explicit,
// client-supplied percentage of work to keep local (the remainder is the
// portion a full offload implementation would ship to a remote host —
// out of scope here, see DESIGN.md). This is distinct from the automatic
// DYNAMIC adjustment the worker drives off observed queue depth (see
// search.runFilters); a client override always takes the FIXED path.
func (h *Handlers) handleSetOffload(conn *ConnState, payload []byte) (ControlRecord, error) {
	pct, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return ControlRecord{}, fmt.Errorf("transport: set_offload: %w", err)
	}
	conn.Search.Split.SetRatio(pct)
	return ControlRecord{Op: OpSetOffload}, nil
}

func (h *Handlers) handleStart(conn *ConnState) (ControlRecord, error) {
	conn.mu.Lock()
	dir := conn.ObjDir
	conn.mu.Unlock()
	if dir == "" {
		return ControlRecord{}, fmt.Errorf("transport: start: set_obj must precede start")
	}

	it, err := object.NewIterator(dir, h.log)
	if err != nil {
		return ControlRecord{}, fmt.Errorf("transport: start: %w", err)
	}

	if err := conn.Search.Start(); err != nil {
		return ControlRecord{}, err
	}
	if conn.Exec != nil && h.metrics != nil {
		conn.Exec.SetMetrics(h.metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn.mu.Lock()
	conn.cancel = cancel
	done := make(chan error, 1)
	conn.workerDone = done
	conn.mu.Unlock()

	go func() {
		done <- search.RunWorkers(ctx, conn.Search, it, conn.Exec, conn.Rings, h.obs, h.metrics, h.txRelease(conn))
	}()

	conn.MarkSearchOpened(h.srv)
	return ControlRecord{Op: OpStart}, nil
}

// txRelease builds the transport tx thread's per-object callback for
// conn: a best-effort write of the object's name, framed the same way as
// a control record, to the connection's bound data socket. A write
// failure (e.g. a client that never dials or already closed its data
// connection) is logged, not fatal — the tx thread keeps draining so the
// rings never fill.
func (h *Handlers) txRelease(conn *ConnState) func(obj *object.Object) {
	return func(obj *object.Object) {
		if conn.Data == nil {
			return
		}
		rec := ControlRecord{Op: OpGetChar, Payload: []byte(obj.Name)}
		if err := WriteControlRecord(conn.Data, rec); err != nil && h.log != nil {
			h.log.Debug("tx write failed", "session", conn.SessionID, "err", err)
		}
	}
}

func (h *Handlers) handleStop(conn *ConnState) (ControlRecord, error) {
	if err := conn.Search.Stop(); err != nil && conn.Search.Phase() != search.Draining {
		return ControlRecord{}, err
	}
	conn.mu.Lock()
	cancel := conn.cancel
	done := conn.workerDone
	conn.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	search.FlushAll(conn.Rings, h.txRelease(conn))
	if err := conn.Search.FinishDraining(); err != nil {
		return ControlRecord{}, err
	}
	conn.MarkSearchClosedIfNeeded(h.srv)
	return ControlRecord{Op: OpStop}, nil
}

func (h *Handlers) handleTerminate(conn *ConnState) (ControlRecord, error) {
	conn.mu.Lock()
	cancel := conn.cancel
	conn.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	conn.Search.Terminate()
	conn.MarkSearchClosedIfNeeded(h.srv)
	return ControlRecord{Op: OpTerminate}, nil
}

// handleGetStats serializes the filter stat table as repeated
// "name,processed,dropped,avg_ns" lines, the control-path read spec §5
// calls out as tolerating torn reads.
func (h *Handlers) handleGetStats(conn *ConnState) (ControlRecord, error) {
	if conn.Search.Filters == nil {
		return ControlRecord{Op: OpGetStats}, nil
	}
	stats := make([]filter.Stat, len(conn.Search.Filters.Filters))
	if err := conn.Search.Filters.GetStats(stats); err != nil {
		return ControlRecord{}, err
	}
	var b strings.Builder
	for _, s := range stats {
		fmt.Fprintf(&b, "%s,%d,%d,%d\n", s.Name, s.ObjsProcessed, s.ObjsDropped, s.AvgExecTimeNS)
	}
	return ControlRecord{Op: OpGetStats, Payload: []byte(b.String())}, nil
}

// handleReleaseObj hands an object back, the client's acknowledgement
// that it has consumed the result drained from the complete/partial
// ring. There is nothing further to free here; object lifetime is the
// iterator's, not the ring's.
func (h *Handlers) handleReleaseObj(conn *ConnState, payload []byte) (ControlRecord, error) {
	return ControlRecord{Op: OpReleaseObj}, nil
}

// handleGetChar pulls the next completed object name for interactive
// single-step inspection, draining the complete ring one item at a time.
// It races the tx thread's own continuous drain (search.runTx), so once a
// search's data connection is live this will usually find the ring
// already emptied; it exists for clients that poll the control channel
// instead of reading the data socket.
func (h *Handlers) handleGetChar(conn *ConnState) (ControlRecord, error) {
	item, ok := conn.Rings.Complete.Deq()
	if !ok {
		return ControlRecord{Op: OpGetChar}, nil
	}
	obj := item.(*object.Object)
	return ControlRecord{Op: OpGetChar, Payload: []byte(obj.Name)}, nil
}
