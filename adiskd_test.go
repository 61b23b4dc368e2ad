package adiskd

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/transport"
)

func zeroPorts() (int, int) { return 0, 0 }

func TestNewServer_DefaultsAndServe(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "obj0"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("write object: %v", err)
	}

	obs := NewStubObserver()

	srv, err := NewServer(ServerParams{
		Observer: obs,
		NewExecutor: func(set *filter.Set) *filter.Executor {
			exec, _ := NewStubExecutor(set, map[filter.ID][]int64{0: {1}})
			return exec
		},
		Ports: zeroPorts,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	go srv.Serve()

	// Exercise the listener through a real control/data session.
	ctrlAddr, dataAddr := serverAddrs(t, srv)

	ctrl, err := net.Dial("tcp", ctrlAddr)
	if err != nil {
		t.Fatalf("dial control: %v", err)
	}
	defer ctrl.Close()

	dialed := make(chan struct{})
	go func() {
		if c, err := net.Dial("tcp", dataAddr); err == nil {
			defer c.Close()
		}
		close(dialed)
	}()
	<-dialed

	r := bufio.NewReader(ctrl)
	send := func(rec transport.ControlRecord) transport.ControlRecord {
		t.Helper()
		if err := transport.WriteControlRecord(ctrl, rec); err != nil {
			t.Fatalf("write %s: %v", rec.Op, err)
		}
		ctrl.SetReadDeadline(time.Now().Add(2 * time.Second))
		resp, err := transport.ReadControlRecord(r)
		if err != nil {
			t.Fatalf("read response to %s: %v", rec.Op, err)
		}
		return resp
	}

	send(transport.ControlRecord{Op: transport.OpSetObj, Payload: []byte(dir)})
	send(transport.ControlRecord{Op: transport.OpSetSpec, Payload: transport.PlainPayload("f0")})
	send(transport.ControlRecord{Op: transport.OpSetGID, Payload: []byte("00:00:00:00:00:00:00:01")})
	send(transport.ControlRecord{Op: transport.OpStart})

	if srv.ActiveSearches() != 1 {
		t.Fatalf("ActiveSearches = %d, want 1 while the search is running", srv.ActiveSearches())
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(obs.Completed()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(obs.Completed()) != 1 {
		t.Fatalf("completed = %v, want one object", obs.Completed())
	}

	send(transport.ControlRecord{Op: transport.OpStop})
	send(transport.ControlRecord{Op: transport.OpTerminate})

	if srv.ActiveSearches() != 0 {
		t.Fatalf("ActiveSearches = %d, want 0 once the search has terminated", srv.ActiveSearches())
	}
}

func serverAddrs(t *testing.T, srv *Server) (ctrl, data string) {
	t.Helper()
	ctrlAddr, dataAddr := srv.listener.Addrs()
	return ctrlAddr.String(), dataAddr.String()
}
