// Command bridgebackend is a reference backend process: it serves the
// bridge wire protocol over stdin/stdout against a real directory,
// for exercising bridgefs without a bespoke backend.
package main

import (
	"fmt"
	"os"

	"github.com/bridgefs/bridgefs/internal/log"
	"github.com/bridgefs/bridgefs/localbackend"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func parseLevel(s string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("bridgebackend: invalid --log-level %q: %w", s, err)
	}
	return level, nil
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "bridgebackend <root-dir>",
		Short: "Serve the bridge wire protocol over stdio against a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			info, err := os.Stat(root)
			if err != nil {
				return fmt.Errorf("bridgebackend: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("bridgebackend: %q is not a directory", root)
			}

			level, err := parseLevel(logLevel)
			if err != nil {
				return err
			}
			logger := log.New(level)

			b := localbackend.New(root, logger)
			return b.Serve(os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")
	return cmd
}
