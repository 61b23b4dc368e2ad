package transport

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opendiamond-go/adiskd/internal/constants"
	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
	"github.com/opendiamond-go/adiskd/internal/search"
)

// PortLookup resolves the control and data ports to bind, standing in
// for diamond_get_control_port()/diamond_get_data_port().
type PortLookup func() (control, data int)

// DefaultPorts is the stand-in port lookup, returning the fixed ports
// from internal/constants.
func DefaultPorts() (int, int) {
	return constants.DefaultControlPort, constants.DefaultDataPort
}

// Listener owns the two bound sockets (control, data) described in spec
// §4.7 and accepts/dispatches connections. Grounded on sstub_init_ext's
// two-listener setup and adiskd.c's accept loop.
type Listener struct {
	cfg      search.ServerConfig
	srv      *search.ServerState
	handlers *Handlers
	log      interfaces.Logger

	ctrlLn net.Listener
	dataLn net.Listener

	mu    sync.Mutex
	conns map[*ConnState]struct{}

	newExecutor     func(*filter.Set) *filter.Executor
	spawnBackground func(dir string) (pid int, err error)
}

// NewListener binds the control and data ports using ports (falling
// back to DefaultPorts). When cfg.BindLocally is set, both sockets are
// restricted to loopback, matching bind_only_locally. spawnBackground, if
// non-nil, is called on the reap tick whenever cfg.ShouldRunBackground
// gates a new pre-warm pass; it is expected to start the background
// process and return its pid without waiting for it to exit.
func NewListener(cfg search.ServerConfig, srv *search.ServerState, handlers *Handlers, log interfaces.Logger, newExecutor func(*filter.Set) *filter.Executor, spawnBackground func(dir string) (int, error), ports PortLookup) (*Listener, error) {
	if ports == nil {
		ports = DefaultPorts
	}
	ctrlPort, dataPort := ports()

	host := ""
	if cfg.BindLocally {
		host = "127.0.0.1"
	}

	ctrlLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, ctrlPort))
	if err != nil {
		return nil, fmt.Errorf("transport: bind control port %d: %w", ctrlPort, err)
	}
	dataLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, dataPort))
	if err != nil {
		ctrlLn.Close()
		return nil, fmt.Errorf("transport: bind data port %d: %w", dataPort, err)
	}

	return &Listener{
		cfg:             cfg,
		srv:             srv,
		handlers:        handlers,
		log:             log,
		ctrlLn:          ctrlLn,
		dataLn:          dataLn,
		conns:           make(map[*ConnState]struct{}),
		newExecutor:     newExecutor,
		spawnBackground: spawnBackground,
	}, nil
}

// Addrs returns the bound control and data addresses, useful for tests
// that bind to an ephemeral port.
func (l *Listener) Addrs() (control, data net.Addr) {
	return l.ctrlLn.Addr(), l.dataLn.Addr()
}

// Close closes both listening sockets and every tracked connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	conns := make([]*ConnState, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	ctrlErr := l.ctrlLn.Close()
	dataErr := l.dataLn.Close()
	if ctrlErr != nil {
		return ctrlErr
	}
	return dataErr
}

// Serve accepts control connections until the listener is closed,
// dispatching each to its own goroutine, and reaps background zombies on
// a fixed tick. Each accepted control connection matches exactly one
// data connection accepted from dataLn in turn, mirroring the original's
// paired control/data session handshake.
func (l *Listener) Serve() error {
	if l.log != nil && l.cfg.NotSilent {
		l.log.Info("listening", "control", l.ctrlLn.Addr(), "data", l.dataLn.Addr())
	}

	reapTicker := time.NewTicker(constants.BackgroundReapInterval)
	defer reapTicker.Stop()
	go func() {
		for range reapTicker.C {
			if pid, ok := l.srv.ReapOnce(); ok {
				if l.log != nil {
					l.log.Debug("reaped background child", "pid", pid)
				}
			}
			l.maybeStartBackground()
		}
	}()

	for {
		ctrl, err := l.ctrlLn.Accept()
		if err != nil {
			return fmt.Errorf("transport: control accept: %w", err)
		}
		data, err := l.dataLn.Accept()
		if err != nil {
			ctrl.Close()
			return fmt.Errorf("transport: data accept: %w", err)
		}

		conn := l.newConn(ctrl, data)
		go l.serveConn(conn)
	}
}

// maybeStartBackground starts one background pre-warm pass when
// cfg.ShouldRunBackground gates it and a directory is known, mirroring
// adiskd.c's post-reap
//
//	if ((background_pid == -1) && (active_searches == 0) && do_background)
//
// check. A missing spawnBackground hook or object directory is silently
// skipped rather than treated as an error: the background task is best
// effort.
func (l *Listener) maybeStartBackground() {
	if l.spawnBackground == nil || !l.cfg.ShouldRunBackground(l.srv) {
		return
	}
	dir := l.srv.ObjDir()
	if dir == "" {
		return
	}
	pid, err := l.spawnBackground(dir)
	if err != nil {
		if l.log != nil {
			l.log.Warn("failed to start background task", "dir", dir, "err", err)
		}
		return
	}
	l.srv.SetBackgroundPID(pid)
	if l.log != nil {
		l.log.Debug("started background task", "dir", dir, "pid", pid)
	}
}

// newConn allocates a fresh ConnState and its owning search, the
// listener's new_conn_cb equivalent.
func (l *Listener) newConn(ctrl, data net.Conn) *ConnState {
	st := search.New(ctrl.RemoteAddr().String(), l.log)
	rings := search.NewRings(constants.DefaultRingCapacity)
	conn := NewConnState(ctrl, data, st, rings)

	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()

	return conn
}

// serveConn reads and dispatches control records from conn until it
// errors or the peer disconnects, then releases the connection. Any
// transport-level error marks the connection CLOSED, matching
// close_conn_cb.
func (l *Listener) serveConn(conn *ConnState) {
	defer l.closeConn(conn)

	r := bufio.NewReader(conn.Control)
	for {
		rec, err := ReadControlRecord(r)
		if err != nil {
			if l.log != nil {
				l.log.Debug("control connection closed", "session", conn.SessionID, "err", err)
			}
			return
		}

		resp, err := l.handlers.Dispatch(conn, rec)
		if err != nil {
			if l.log != nil {
				l.log.Warn("control dispatch error", "op", rec.Op, "err", err)
			}
			conn.Search.Terminate()
			return
		}
		if rec.Op == OpSetSpec && l.newExecutor != nil {
			conn.Exec = l.newExecutor(conn.Search.Filters)
		}

		if err := WriteControlRecord(conn.Control, resp); err != nil {
			if l.log != nil {
				l.log.Debug("control write failed", "session", conn.SessionID, "err", err)
			}
			return
		}

		if rec.Op == OpTerminate || rec.Op == OpDisconnect {
			return
		}
	}
}

func (l *Listener) closeConn(conn *ConnState) {
	conn.Close()
	conn.Search.Terminate()
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	conn.MarkSearchClosedIfNeeded(l.srv)
}
