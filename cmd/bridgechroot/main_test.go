package main

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsTooFewArguments(t *testing.T) {
	assert.Equal(t, 1, run([]string{"bridgechroot"}))
	assert.Equal(t, 1, run([]string{"bridgechroot", "/newroot"}))
	assert.Equal(t, 1, run([]string{"bridgechroot", "/newroot", "/"}))
}

func TestExitCodeForNormalExit(t *testing.T) {
	err := exec.Command("sh", "-c", "exit 7").Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	assert.Equal(t, 7, exitCodeFor(exitErr))
}

func TestExitCodeForSignalDeath(t *testing.T) {
	err := exec.Command("sh", "-c", "kill -TERM $$").Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	assert.Equal(t, 128+15, exitCodeFor(exitErr))
}
