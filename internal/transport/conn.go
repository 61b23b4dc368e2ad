// Package transport implements the per-connection state (cstate) and the
// listener that accepts control/data connections and dispatches control
// records to a search's callback set. It is grounded on
// original_source/src/lib/transport/socket/storagestub/sstub_api.c.
package transport

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/search"
)

// Flag is the CSTATE_* bitset tracked on a connection.
type Flag uint32

const (
	FlagAuthed Flag = 1 << iota
	FlagObjData
	FlagDraining
	FlagClosing
)

// ConnState (cstate) is one accepted connection's full state: its
// sockets, flags, session id, rings, and a pointer to the search state it
// drives. Flags and ring mutation are guarded by mu, matching spec §3.
type ConnState struct {
	mu sync.Mutex

	SessionID uuid.UUID
	Control   net.Conn
	Data      net.Conn

	flags Flag

	Search *search.State
	Rings  *search.Rings
	Exec   *filter.Executor

	ObjDir  string
	ObjList []string
	Blob    []byte

	cancel        context.CancelFunc
	workerDone    chan error
	searchCounted bool
}

// MarkSearchOpened records srv.SearchOpened() against this connection,
// exactly once, so a subsequent abrupt disconnect and an explicit
// stop/terminate never double-count the close.
func (c *ConnState) MarkSearchOpened(srv *search.ServerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchCounted {
		return
	}
	c.searchCounted = true
	srv.SearchOpened()
}

// MarkSearchClosedIfNeeded balances a prior MarkSearchOpened, a no-op if
// this connection's search was never counted as open.
func (c *ConnState) MarkSearchClosedIfNeeded(srv *search.ServerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.searchCounted {
		return
	}
	c.searchCounted = false
	srv.SearchClosed()
}

// NewConnState allocates a fresh connection state with a random session
// id, matching the listener's new_conn_cb allocating a fresh sstate.
func NewConnState(control, data net.Conn, st *search.State, rings *search.Rings) *ConnState {
	return &ConnState{
		SessionID: uuid.New(),
		Control:   control,
		Data:      data,
		Search:    st,
		Rings:     rings,
	}
}

// SetFlag and ClearFlag mutate the connection's flag bitset under its
// lock.
func (c *ConnState) SetFlag(f Flag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags |= f
}

func (c *ConnState) ClearFlag(f Flag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags &^= f
}

// HasFlag reports whether f is currently set.
func (c *ConnState) HasFlag(f Flag) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags&f != 0
}

// Close cancels any running worker goroutines and closes both sockets,
// tolerating either being nil (a connection may only have one side
// established, e.g. in tests).
func (c *ConnState) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	var firstErr error
	if c.Control != nil {
		if err := c.Control.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Data != nil {
		if err := c.Data.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
