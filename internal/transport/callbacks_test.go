package transport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/gidx"
	"github.com/opendiamond-go/adiskd/internal/search"
)

type passAllCaller struct{}

func (passAllCaller) Call(payload []byte, attrValues []string) (int64, error) { return 1, nil }

func newTestConn() *ConnState {
	return NewConnState(nil, nil, search.New("sess", nil), search.NewRings(8))
}

func TestHandlers_SetObjMovesToConfiguring(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()

	resp, err := h.Dispatch(conn, ControlRecord{Op: OpSetObj, Payload: []byte("/tmp/objs")})
	if err != nil {
		t.Fatalf("Dispatch set_obj: %v", err)
	}
	if resp.Op != OpSetObj {
		t.Fatalf("response op = %s, want set_obj", resp.Op)
	}
	if conn.ObjDir != "/tmp/objs" {
		t.Fatalf("ObjDir = %q, want /tmp/objs", conn.ObjDir)
	}
	if conn.Search.Phase() != search.Configuring {
		t.Fatalf("phase = %s, want CONFIGURING", conn.Search.Phase())
	}
}

func TestHandlers_SetSpecBuildsFilterSetAndPermutation(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()

	resp, err := h.Dispatch(conn, ControlRecord{Op: OpSetSpec, Payload: PlainPayload("f0", "f1")})
	if err != nil {
		t.Fatalf("Dispatch set_spec: %v", err)
	}
	if resp.Op != OpSetSpec {
		t.Fatalf("response op = %s, want set_spec", resp.Op)
	}
	if len(conn.Search.Filters.Filters) != 2 {
		t.Fatalf("got %d filters, want 2", len(conn.Search.Filters.Filters))
	}
	if len(conn.Search.Perm.Current()) != 2 {
		t.Fatalf("got permutation length %d, want 2", len(conn.Search.Perm.Current()))
	}
}

func TestHandlers_SetGIDParsesAndAppends(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()

	_, err := h.Dispatch(conn, ControlRecord{Op: OpSetGID, Payload: []byte("00:00:00:00:00:00:00:01")})
	if err != nil {
		t.Fatalf("Dispatch sgid: %v", err)
	}
	if len(conn.Search.GIDs) != 1 || conn.Search.GIDs[0] != 1 {
		t.Fatalf("GIDs = %v, want [1]", conn.Search.GIDs)
	}
}

func TestHandlers_SetGIDRejectsMalformed(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()

	if _, err := h.Dispatch(conn, ControlRecord{Op: OpSetGID, Payload: []byte("not-a-gid")}); err == nil {
		t.Fatal("expected error for malformed gid")
	}
}

func TestHandlers_ClearGIDs(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()
	conn.Search.GIDs = gidList()

	if _, err := h.Dispatch(conn, ControlRecord{Op: OpClearGIDs}); err != nil {
		t.Fatalf("Dispatch clear_gids: %v", err)
	}
	if len(conn.Search.GIDs) != 0 {
		t.Fatal("expected GIDs cleared")
	}
}

func TestHandlers_UnknownOpErrors(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()

	if _, err := h.Dispatch(conn, ControlRecord{Op: Op("bogus")}); err == nil {
		t.Fatal("expected error for unrecognized op")
	}
}

func TestHandlers_TreeOpsUnsupported(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()

	for _, op := range []Op{OpReadLeaf, OpWriteLeaf, OpListNode, OpListLeaf} {
		if _, err := h.Dispatch(conn, ControlRecord{Op: op}); err == nil {
			t.Fatalf("expected %s to be unsupported", op)
		}
	}
}

func TestHandlers_StartRequiresSetObjFirst(t *testing.T) {
	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()
	conn.Search.Filters = filter.NewSet([]*filter.Descriptor{{Name: "f0"}})
	conn.Search.Perm = filter.NewOptimizer(filter.Permutation{0})
	conn.Search.GIDs = gidList()
	_ = conn.Search.Configure()

	if _, err := h.Dispatch(conn, ControlRecord{Op: OpStart}); err == nil {
		t.Fatal("expected start to fail without a prior set_obj")
	}
}

func TestHandlers_FullStartStopLifecycle(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write object: %v", err)
		}
	}

	h := NewHandlers(nil, nil, search.NewServerState(nil))
	conn := newTestConn()

	if _, err := h.Dispatch(conn, ControlRecord{Op: OpSetObj, Payload: []byte(dir)}); err != nil {
		t.Fatalf("set_obj: %v", err)
	}
	if _, err := h.Dispatch(conn, ControlRecord{Op: OpSetSpec, Payload: PlainPayload("f0")}); err != nil {
		t.Fatalf("set_spec: %v", err)
	}
	if _, err := h.Dispatch(conn, ControlRecord{Op: OpSetGID, Payload: []byte("00:00:00:00:00:00:00:01")}); err != nil {
		t.Fatalf("sgid: %v", err)
	}
	conn.Exec = filter.NewExecutor(conn.Search.Filters, map[filter.ID]filter.Caller{0: passAllCaller{}}, nil)

	if _, err := h.Dispatch(conn, ControlRecord{Op: OpStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if conn.Search.Phase() != search.Running {
		t.Fatalf("phase after start = %s, want RUNNING", conn.Search.Phase())
	}

	deadline := time.After(2 * time.Second)
	for conn.Search.Counters.ObjTotal.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for objects to be fed")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := h.Dispatch(conn, ControlRecord{Op: OpStop}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if conn.Search.Phase() != search.Idle {
		t.Fatalf("phase after stop = %s, want IDLE", conn.Search.Phase())
	}
}

func gidList() []gidx.GID {
	return []gidx.GID{1}
}
