// Package daemon implements Bootstrap: given a Registry the caller has
// already populated, it runs the Validator, optionally detaches from the controlling
// terminal and redirects diagnostics to a log file, then enters the event
// loop. See DESIGN.md for the daemonization approach.
package daemon

import (
	"fmt"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/repeater/internal/diag"
	"github.com/kestrelnet/repeater/internal/dispatch"
	"github.com/kestrelnet/repeater/internal/loop"
	"github.com/kestrelnet/repeater/internal/poller"
	"github.com/kestrelnet/repeater/internal/registry"
	"github.com/kestrelnet/repeater/internal/socket"
	"github.com/kestrelnet/repeater/internal/validate"
)

// daemonizeSentinel is the environment variable the re-exec'd child checks
// to tell it apart from the original invocation.
const daemonizeSentinel = "REPEATER_DAEMON_CHILD"

// Config holds everything Bootstrap needs beyond the already-populated
// Registry.
type Config struct {
	Registry   *registry.Registry
	Sockets    *socket.Manager
	Logger     *logrus.Logger // if nil, diag.New(os.Stderr, debug) is used
	Debug      bool
	Foreground bool   // disables the detach step; set by the --foreground flag
	LogPath    string // required unless Foreground
}

// Run performs validation, optional daemonization, and then blocks forever
// in the event loop. It returns only on a fatal validation or setup error;
// once the event loop starts, Run never returns under normal operation.
func Run(cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = diag.New(os.Stderr, cfg.Debug)
	}

	if errs := validate.Run(cfg.Registry); len(errs) > 0 {
		for _, e := range errs {
			cfg.Logger.WithError(e).Error("configuration failed validation")
		}
		return fmt.Errorf("%d validation error(s), refusing to start", len(errs))
	}

	if !cfg.Foreground {
		if err := daemonize(cfg.LogPath); err != nil {
			return err
		}
		// Past this point we are the detached child (or the original
		// process, which daemonize() has already os.Exit'd on the parent
		// side of the fork).
		cfg.Logger = diag.New(nil, cfg.Debug)
		logFile, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cfg.Logger.SetOutput(logFile)
	}

	d := dispatch.New(cfg.Registry, cfg.Sockets)
	p := poller.New()
	l := loop.New(cfg.Registry, p, d, cfg.Logger)

	cfg.Logger.Info("repeater starting event loop")
	return l.Run()
}

// daemonize re-execs the current binary in a new session with stdin
// attached to /dev/null and stdout/stderr attached to the log file, then
// releases the child and exits 0. This stands in for fork(2), which the Go
// runtime does not support safely once goroutines are running. All
// configuration, validation, and socket setup already ran in this process
// before daemonize is called, so the parent's exit status reflects those
// checks. The child is a fresh run of the same command line: it reloads the
// configuration file, opens and binds its own sockets, and validates again
// before entering the event loop. The parent does not wait for it, so a
// failure in the child shows up only in the log file.
//
// When daemonizeSentinel is already set, the process is the re-exec'd
// child: daemonize becomes a no-op so the caller proceeds straight to the
// event loop.
func daemonize(logPath string) error {
	if os.Getenv(daemonizeSentinel) != "" {
		return nil
	}
	if logPath == "" {
		return fmt.Errorf("daemonize: log path is required unless running in foreground")
	}

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("daemonize: open log file: %w", err)
	}
	defer logFile.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("daemonize: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemonize: resolve executable path: %w", err)
	}

	attr := &os.ProcAttr{
		Env:   append(os.Environ(), daemonizeSentinel+"=1"),
		Files: []*os.File{devNull, logFile, logFile},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}

	proc, err := os.StartProcess(self, os.Args, attr)
	if err != nil {
		return fmt.Errorf("daemonize: start child: %w", err)
	}

	// The parent's job ends here: the child owns the process group and
	// the event loop from this point on. Release detaches without waiting
	// on the child; "successful daemonization" only promises the child
	// process was started, not that its event loop is up.
	if err := proc.Release(); err != nil {
		return fmt.Errorf("daemonize: release child: %w", err)
	}

	os.Exit(0)
	return nil // unreachable
}
