// Package adiskd implements an interactive brute-force search daemon:
// an object-directory iterator driven through a permutation-optimized
// filter chain, exposed over a paired control/data TCP listener.
package adiskd

import (
	"net"

	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
	"github.com/opendiamond-go/adiskd/internal/search"
	"github.com/opendiamond-go/adiskd/internal/transport"
)

// ServerParams configures a Server at construction. NewExecutor builds
// the filter.Executor for a connection's filter set once set_spec has
// been dispatched — in production this spawns one child process per
// filter via filter.StartChild; tests typically substitute
// NewStubExecutor.
type ServerParams struct {
	Config      search.ServerConfig
	Logger      interfaces.Logger
	Observer    interfaces.Observer
	NewExecutor func(*filter.Set) *filter.Executor
	// SpawnBackground starts one background pre-warm pass over dir and
	// returns its pid without waiting for it to exit. Left nil, the
	// server never runs a background task, matching DoBackground=false.
	SpawnBackground func(dir string) (pid int, err error)
	Ports           transport.PortLookup
}

// Server is the top-level facade: one ServerState plus the listener
// bound to its control/data ports.
type Server struct {
	cfg      search.ServerConfig
	state    *search.ServerState
	listener *transport.Listener
	metrics  *Metrics
}

// NewServer builds and binds a Server from p, applying defaults for any
// zero-valued field (DefaultServerConfig, DefaultPorts).
func NewServer(p ServerParams) (*Server, error) {
	if p.Config == (search.ServerConfig{}) {
		p.Config = search.DefaultServerConfig()
	}
	if p.NewExecutor == nil {
		p.NewExecutor = func(set *filter.Set) *filter.Executor {
			return filter.NewExecutor(set, nil, p.Logger)
		}
	}

	state := search.NewServerState(p.Logger)
	handlers := transport.NewHandlers(p.Logger, p.Observer, state)
	metrics := NewMetrics()
	handlers.SetMetrics(metrics)

	ln, err := transport.NewListener(p.Config, state, handlers, p.Logger, p.NewExecutor, p.SpawnBackground, p.Ports)
	if err != nil {
		return nil, WrapError("NewServer", err)
	}

	return &Server{
		cfg:      p.Config,
		state:    state,
		listener: ln,
		metrics:  metrics,
	}, nil
}

// Serve accepts and services connections until the listener is closed or
// a fatal accept error occurs.
func (s *Server) Serve() error {
	return s.listener.Serve()
}

// Close shuts down the listener and every open connection.
func (s *Server) Close() error {
	s.metrics.Stop()
	return s.listener.Close()
}

// ActiveSearches reports the number of connections with a search in
// RUNNING phase.
func (s *Server) ActiveSearches() int32 {
	return s.state.ActiveSearches()
}

// Metrics returns the server's process-wide metrics aggregator.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addrs returns the bound control and data addresses, useful for tests
// that bind to an ephemeral port via ServerParams.Ports.
func (s *Server) Addrs() (control, data net.Addr) {
	return s.listener.Addrs()
}
