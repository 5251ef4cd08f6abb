// Command bridgechroot launches a command inside a change-rooted
// environment: `bridgechroot <new-root> <working-dir> <command> [args...]`
// chroots into new-root, changes to working-dir (resolved inside the new
// root) and execs command, then mirrors its exit status.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func usage(program string) {
	fmt.Fprintf(os.Stderr, "Usage: %s <new-root> <working-dir> <command> [args...]\n", program)
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) < 4 {
		usage(args[0])
		return 1
	}
	newRoot, workingDir, command, cmdArgs := args[1], args[2], args[3], args[4:]

	cmd := exec.Command(command, cmdArgs...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = workingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Chroot: newRoot}

	err := cmd.Run()
	if err == nil {
		return 0
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		fmt.Fprintf(os.Stderr, "bridgechroot: %v\n", err)
		return 1
	}
	return exitCodeFor(exitErr)
}

// exitCodeFor mirrors the child's termination the way a shell does: its
// own exit status if it exited normally, 128+signal if killed by a
// signal, 1 for anything else.
func exitCodeFor(exitErr *exec.ExitError) int {
	sysWs, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return 1
	}
	ws := unix.WaitStatus(sysWs)
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return 1
	}
}
