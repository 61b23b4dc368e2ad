package search

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/opendiamond-go/adiskd/internal/interfaces"
)

// ServerConfig is the startup-time, immutable configuration that the
// original kept as process-wide globals (do_daemon, do_fork,
// do_background, idle_background, bind_locally, not_silent), per spec
// §9's "fold into a ServerConfig value constructed at startup" note. It
// is built once from CLI flags and never mutated.
type ServerConfig struct {
	DoDaemon      bool
	DoFork        bool
	DoBackground  bool
	IdleBackground bool
	BindLocally   bool
	NotSilent     bool
}

// DefaultServerConfig matches the original's default globals: daemonize,
// fork per connection, run background tasks only when idle, bind on all
// interfaces.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		DoDaemon:       true,
		DoFork:         true,
		DoBackground:   true,
		IdleBackground: true,
		BindLocally:    false,
		NotSilent:      false,
	}
}

// ServerState is the one piece of mutable bookkeeping the listener owns:
// how many searches are active and which pid (if any) is running the
// background task. It replaces the original's active_searches and
// background_pid globals.
type ServerState struct {
	activeSearches atomic.Int32
	mu             sync.Mutex
	backgroundPID  int
	objDir         string
	log            interfaces.Logger
}

// NewServerState returns a ServerState with no active searches and no
// background task running.
func NewServerState(log interfaces.Logger) *ServerState {
	return &ServerState{backgroundPID: -1, log: log}
}

// ActiveSearches returns the current count of connections with a search
// in progress.
func (s *ServerState) ActiveSearches() int32 {
	return s.activeSearches.Load()
}

// SearchOpened increments the active-search count; called when a
// connection's search transitions into RUNNING.
func (s *ServerState) SearchOpened() {
	s.activeSearches.Add(1)
}

// SearchClosed decrements the active-search count; called when a
// connection's search leaves RUNNING (DRAINING, terminate, or
// disconnect).
func (s *ServerState) SearchClosed() {
	s.activeSearches.Add(-1)
}

// BackgroundPID returns the pid of the running background task, or -1 if
// none is running.
func (s *ServerState) BackgroundPID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backgroundPID
}

// ShouldRunBackground reports whether a new background task should be
// started right now, matching adiskd.c's
//
//	(background_pid == -1) && (active_searches == 0) && do_background
//
// gate, refined by IdleBackground: when IdleBackground is false the
// active-searches check is skipped (background may run even while busy).
func (cfg ServerConfig) ShouldRunBackground(s *ServerState) bool {
	if !cfg.DoBackground {
		return false
	}
	if s.BackgroundPID() != -1 {
		return false
	}
	if cfg.IdleBackground && s.ActiveSearches() != 0 {
		return false
	}
	return true
}

// SetBackgroundPID records the pid of a freshly started background task.
func (s *ServerState) SetBackgroundPID(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backgroundPID = pid
}

// SetObjDir records the most recently configured object directory, so the
// background task has somewhere to pre-warm once a connection has called
// set_obj at least once. The original read this from the same global
// odisk state a live search used; here it is the listener's best estimate
// of "the directory objects currently live in" since the background task
// is not tied to any one connection.
func (s *ServerState) SetObjDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objDir = dir
}

// ObjDir returns the last directory recorded by SetObjDir, or "" if none
// has been set yet.
func (s *ServerState) ObjDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objDir
}

// ReapOnce performs one non-blocking wait for a terminated child,
// matching the listener's periodic `waitpid(-1, &status, WNOHANG)`. A pid
// equal to the tracked background pid clears that tracker; any other
// reaped pid is assumed to be a per-connection filter/search child and
// decrements the active-search count. Returns (0, false) if no child has
// exited.
func (s *ServerState) ReapOnce() (pid int, reaped bool) {
	var status unix.WaitStatus
	wpid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
	if err != nil || wpid <= 0 {
		return 0, false
	}

	s.mu.Lock()
	isBackground := wpid == s.backgroundPID
	if isBackground {
		s.backgroundPID = -1
	}
	s.mu.Unlock()

	if !isBackground {
		s.SearchClosed()
	}
	return wpid, true
}
