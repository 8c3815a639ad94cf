// Command repeaterd is the CLI front-end for the UDP packet repeater: it
// loads a JSON configuration file, validates it, and starts the forwarding
// daemon. The core forwarding engine lives in internal/registry,
// internal/validate, internal/loop, and internal/dispatch; this command
// only wires them together.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelnet/repeater/internal/config"
	"github.com/kestrelnet/repeater/internal/daemon"
	"github.com/kestrelnet/repeater/internal/registry"
	"github.com/kestrelnet/repeater/internal/socket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var foreground bool
	var debug bool

	cmd := &cobra.Command{
		Use:   "repeaterd <config-file> <log-file>",
		Short: "Repeat UDP datagrams between configured listeners and targets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], foreground, debug)
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable per-packet debug logging")

	return cmd
}

func run(configPath, logPath string, foreground, debug bool) error {
	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open configuration file: %w", err)
	}
	defer configFile.Close()

	sockets := socket.NewManager()
	reg := registry.New(sockets)

	if errs := config.Load(configFile, reg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("%d configuration error(s), refusing to start", len(errs))
	}

	return daemon.Run(daemon.Config{
		Registry:   reg,
		Sockets:    sockets,
		Debug:      debug,
		Foreground: foreground,
		LogPath:    logPath,
	})
}
