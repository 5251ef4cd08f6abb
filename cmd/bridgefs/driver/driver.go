// Package driver wires together the backend process, the request
// client, the bridge filesystem handlers and the FUSE mount itself —
// the glue a cobra command needs to actually service a mount point.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/bridgefs/bridgefs/bridge"
	"github.com/bridgefs/bridgefs/internal/log"
	"github.com/bridgefs/bridgefs/internal/metrics"
	"github.com/bridgefs/bridgefs/ipc"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// noCache disables the kernel's entry/attribute caching: the backend is
// the only source of truth and has no way to push invalidations, so
// every lookup/getattr must go out to it instead of being served stale.
var noCache time.Duration

// Options configures one invocation of Run.
type Options struct {
	MountPoint     string
	BackendCommand string
	BackendArgs    []string
	Debug          bool
	LogLevel       string
}

// backendProcess owns the spawned backend's lifetime: its stdio pipes
// feed the request client, and it is waited on during shutdown so a
// crashed backend is observable instead of silently orphaned.
type backendProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func spawnBackend(command string, args []string) (*backendProcess, error) {
	if command == "" {
		return nil, fmt.Errorf("driver: no backend command configured (set --backend-cmd or BRIDGEFS_BACKEND_CMD)")
	}
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("driver: backend stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("driver: backend stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("driver: starting backend %q: %w", command, err)
	}
	return &backendProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (b *backendProcess) Close() error {
	closeErr := b.stdin.Close()
	waitErr := b.cmd.Wait()
	if closeErr != nil {
		return closeErr
	}
	return waitErr
}

// Run spawns the backend, mounts the bridge filesystem at opt.MountPoint
// and blocks until the filesystem is unmounted or a termination signal
// arrives, whichever happens first.
func Run(ctx context.Context, opt Options) error {
	level, err := logrus.ParseLevel(opt.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger := log.New(level)
	collectors := metrics.NewCollectors(prometheus.NewRegistry())

	backend, err := spawnBackend(opt.BackendCommand, opt.BackendArgs)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.WithError(err).Warn("backend exited with error")
		}
	}()

	client := ipc.New(backend.stdin, backend.stdout, backend.stdin, logger, collectors)
	defer client.Close()

	root := bridge.New(client)
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			SingleThreaded: true,
			Debug:          opt.Debug,
			Name:           "bridgefs",
			FsName:         "bridgefs",
		},
		EntryTimeout: &noCache,
		AttrTimeout:  &noCache,
	}

	server, err := fs.Mount(opt.MountPoint, root, opts)
	if err != nil {
		return fmt.Errorf("driver: mounting at %q: %w", opt.MountPoint, err)
	}

	logger.WithFields(logrus.Fields{"mountpoint": opt.MountPoint}).Info("mounted")

	// fs.Mount already started the serving loop in its own goroutine, so
	// this only waits for it to finish (on unmount) and races that
	// against the shutdown signal, same as the explicit Serve() call
	// this replaced.
	g, gctx := errgroup.WithContext(ctx)
	served := make(chan struct{})
	g.Go(func() error {
		defer close(served)
		server.Wait()
		return nil
	})
	g.Go(func() error {
		return waitForShutdown(gctx, served, server, logger)
	})

	return g.Wait()
}

// waitForShutdown unmounts the filesystem when the caller's context is
// cancelled or a SIGINT/SIGTERM arrives, whichever happens first, and
// returns immediately if the mount is already gone (served closed) —
// e.g. an external "fusermount -u". server.Wait() only returns once
// unmounted, so this is the orderly way to stop it.
func waitForShutdown(ctx context.Context, served <-chan struct{}, server *fuse.Server, logger *logrus.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-served:
		return nil
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.WithField("signal", sig).Info("received shutdown signal, unmounting")
	}

	if err := server.Unmount(); err != nil {
		return fmt.Errorf("driver: unmount: %w", err)
	}
	return nil
}
