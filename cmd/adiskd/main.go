// Command adiskd is the interactive brute-force search daemon: it binds
// the control and data ports, accepts sessions, and runs each one's
// filter chain over its object directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/opendiamond-go/adiskd"
	"github.com/opendiamond-go/adiskd/internal/filter"
	"github.com/opendiamond-go/adiskd/internal/logging"
	"github.com/opendiamond-go/adiskd/internal/object"
	"github.com/opendiamond-go/adiskd/internal/search"
)

// backgroundPrewarmFlag is a hidden, internal-only flag: adiskd re-execs
// itself with it set to run one background pre-warm pass and exit,
// rather than starting the listener. This is how a real child pid (for
// ServerState/ReapOnce to track and reap) is obtained without a native
// fork() in Go.
const backgroundPrewarmFlag = "background-prewarm-dir"

func main() {
	var (
		noBackground = flag.Bool("b", false, "disable the idle background task")
		noDaemon     = flag.Bool("d", false, "do not daemonize")
		help         = flag.Bool("h", false, "print usage and exit")
		runBusy      = flag.Bool("i", false, "run the background task even while searches are active")
		localOnly    = flag.Bool("l", false, "bind the control and data ports to loopback only")
		debug        = flag.Bool("n", false, "debugging mode: no fork, no daemon")
		keepStderr   = flag.Bool("s", false, "do not close stderr when daemonizing")
		verbose      = flag.Bool("v", false, "verbose logging")
		prewarmDir   = flag.String(backgroundPrewarmFlag, "", "internal: run one background pre-warm pass over dir and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *prewarmDir != "" {
		runBackgroundPrewarm(*prewarmDir)
		return
	}

	if *help {
		usage()
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		usage()
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := search.DefaultServerConfig()
	cfg.DoBackground = !*noBackground
	cfg.DoDaemon = !*noDaemon && !*debug
	cfg.DoFork = !*debug
	cfg.IdleBackground = !*runBusy
	cfg.BindLocally = *localOnly
	cfg.NotSilent = !*keepStderr

	srv, err := adiskd.NewServer(adiskd.ServerParams{
		Config: cfg,
		Logger: logger,
		NewExecutor: func(set *filter.Set) *filter.Executor {
			return buildExecutor(set, logger)
		},
		SpawnBackground: spawnBackground,
	})
	if err != nil {
		logger.Error("failed to start adiskd", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	logger.Info("adiskd ready")

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("listener stopped", "error", err)
		}
	}
}

// buildExecutor spawns one child process per filter in set, the
// production NewExecutor every real control session uses. desc.Args[0]
// is the filter's executable path; a filter declared without one can
// never run: every object that reaches it is counted as skipped and
// reported through the search's observer as an error.
func buildExecutor(set *filter.Set, log *logging.Logger) *filter.Executor {
	children := make(map[filter.ID]filter.Caller, len(set.Filters))
	for i, desc := range set.Filters {
		id := filter.ID(i)
		if len(desc.Args) == 0 {
			log.Warn("filter has no executable path, will fail when called", "filter", desc.Name)
			continue
		}
		child, err := filter.StartChild(context.Background(), desc.Args[0], desc)
		if err != nil {
			log.Error("failed to start filter child", "filter", desc.Name, "error", err)
			continue
		}
		children[id] = child
	}
	return filter.NewExecutor(set, children, log)
}

// spawnBackground re-execs the current binary with backgroundPrewarmFlag
// set to dir and returns its pid without waiting for it to exit. This is
// the ServerParams.SpawnBackground hook the listener's reap tick calls
// once ShouldRunBackground gates it.
func spawnBackground(dir string) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve own executable: %w", err)
	}
	cmd := exec.Command(self, "-"+backgroundPrewarmFlag, dir)
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}

// runBackgroundPrewarm is the child side of the background task: a
// single, low-priority pass over dir that reads every object's payload
// to pull it into the OS page cache, then exits. It never touches the
// control/data listener.
func runBackgroundPrewarm(dir string) {
	it, err := object.NewIterator(dir, nil)
	if err != nil {
		os.Exit(1)
	}
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
	}
	os.Exit(0)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: adiskd [options]

  -b    disable the idle background task
  -d    do not daemonize
  -h    print this message and exit
  -i    run the background task even while searches are active
  -l    bind the control and data ports to loopback only
  -n    debugging mode: no fork, no daemon
  -s    do not close stderr when daemonizing
  -v    verbose logging
`)
}
