// Command bridgefs mounts the bridge filesystem at a given mount point
// and services kernel VFS upcalls by forwarding them to a backend
// process over stdio, until the filesystem is unmounted.
package main

import (
	"fmt"
	"os"

	"github.com/bridgefs/bridgefs/cmd/bridgefs/driver"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opt := driver.Options{}

	cmd := &cobra.Command{
		Use:   "bridgefs <mountpoint>",
		Short: "Mount a backend-served filesystem at a local mount point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt.MountPoint = args[0]
			return driver.Run(cmd.Context(), opt)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opt.BackendCommand, "backend-cmd", os.Getenv("BRIDGEFS_BACKEND_CMD"),
		"command used to spawn the backend process (defaults to $BRIDGEFS_BACKEND_CMD)")
	flags.StringArrayVar(&opt.BackendArgs, "backend-arg", nil,
		"argument to pass to the backend command (repeatable)")
	flags.BoolVar(&opt.Debug, "debug", false, "enable verbose FUSE + logging output")
	flags.StringVar(&opt.LogLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")

	return cmd
}
