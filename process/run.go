package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// TailLines is how much output an ExitError carries.
const TailLines = 5

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
	// Tail is the end of stderr, or of stdout when stderr was empty.
	Tail string
	Err  error
}

func (e *ExitError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("process: exit code %d", e.Code)
	}
	return fmt.Sprintf("process: exit code %d\n%s", e.Code, e.Tail)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Run executes cmd and waits for it. A non-zero exit returns the Result
// together with an *ExitError. On cancellation the process group gets
// SIGTERM, then SIGKILL once GracePeriod has passed.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	var stdout, stderr bytes.Buffer
	c := build(ctx, cmd, &stdout, &stderr)

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return result, fmt.Errorf("process: killed by context: %w", ctx.Err())
	case c.ProcessState == nil:
		return result, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	default:
		return result, &ExitError{Code: result.ExitCode, Tail: result.Tail(TailLines), Err: err}
	}
}

func build(ctx context.Context, cmd Command, stdout, stderr *bytes.Buffer) *exec.Cmd {
	grace := cmd.GracePeriod
	if grace == 0 {
		grace = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running task scripts is the point
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin
	c.Stdout = tee(stdout, cmd.Stdout)
	c.Stderr = tee(stderr, cmd.Stderr)

	// Own process group, so cancellation reaches the whole tree.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace
	return c
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
