package archive

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// RunOptions tweaks a single tool invocation.
type RunOptions struct {
	// Dir is the working directory; empty means the current one.
	Dir string
}

// RunResult holds everything the tool wrote.
type RunResult struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes an external tool and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)
}

// CmdRunner runs tools through os/exec with no console window.
type CmdRunner struct{}

func (CmdRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = opts.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	hideWindow(cmd)

	err := cmd.Run()
	return RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}

var _ Runner = CmdRunner{}

// exitCoder is satisfied by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

func exitCode(err error) (int, bool) {
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode(), true
	}
	return 0, false
}
