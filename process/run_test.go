package process_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/dagflow/process"
)

func TestRunShellScript(t *testing.T) {
	result, err := process.Run(context.Background(), process.Shell("sh", "echo hello world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}
	out := strings.TrimSpace(string(result.Stdout))
	if out != "hello world" {
		t.Fatalf("expected 'hello world', got %q", out)
	}
}

func TestRunStdin(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "cat",
		Stdin:  strings.NewReader("from stdin"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := string(result.Stdout)
	if out != "from stdin" {
		t.Fatalf("expected 'from stdin', got %q", out)
	}
}

func TestRunExitCode(t *testing.T) {
	result, err := process.Run(context.Background(), process.Shell("", "echo compiling; exit 42"))
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if result.ExitCode != 42 {
		t.Fatalf("expected exit code 42, got %d", result.ExitCode)
	}
	if result.Success() {
		t.Fatal("expected Success to be false")
	}
	if result.Tail(5) != "compiling" {
		t.Fatalf("expected stdout fallback in tail, got %q", result.Tail(5))
	}
}

func TestRunStderr(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo oops >&2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stderr := strings.TrimSpace(string(result.Stderr))
	if stderr != "oops" {
		t.Fatalf("expected 'oops' on stderr, got %q", stderr)
	}
}

func TestRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := process.Run(ctx, process.Command{
		Binary:      "sleep",
		Args:        []string{"10"},
		GracePeriod: 500 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if result.Duration > 5*time.Second {
		t.Fatalf("process took too long to kill: %v", result.Duration)
	}
}

func TestRunEmptyBinary(t *testing.T) {
	_, err := process.Run(context.Background(), process.Command{})
	if err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestRunDuration(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "sleep",
		Args:   []string{"0.1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Duration < 50*time.Millisecond {
		t.Fatalf("duration too short: %v", result.Duration)
	}
}

func TestRunEnv(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo $MY_TEST_VAR-$OTHER"},
		Env:    process.EnvList(map[string]string{"OTHER": "x", "MY_TEST_VAR": "hello123"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := strings.TrimSpace(string(result.Stdout))
	if out != "hello123-x" {
		t.Fatalf("expected 'hello123-x', got %q", out)
	}
}

func TestRunStreamsOutput(t *testing.T) {
	var live bytes.Buffer
	cmd := process.Shell("sh", "echo line1; echo line2")
	cmd.Stdout = &live

	result, err := process.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live.String() != string(result.Stdout) {
		t.Fatalf("expected streamed copy %q, got %q", result.Stdout, live.String())
	}
	if result.Tail(1) != "line2" {
		t.Fatalf("expected last line, got %q", result.Tail(1))
	}
}

func TestEnvList(t *testing.T) {
	got := process.EnvList(map[string]string{"B": "2", "A": "1"})
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Fatalf("expected sorted pairs, got %v", got)
	}
	if process.EnvList(nil) != nil {
		t.Fatal("expected nil for empty env")
	}
}

func TestRunExitError(t *testing.T) {
	_, err := process.Run(context.Background(), process.Shell("sh", "echo first >&2; echo second >&2; exit 7"))

	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if exitErr.Code != 7 {
		t.Errorf("expected code 7, got %d", exitErr.Code)
	}
	if exitErr.Tail != "first\nsecond" {
		t.Errorf("unexpected tail %q", exitErr.Tail)
	}
	if !strings.HasPrefix(err.Error(), "process: exit code 7\n") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := process.Run(context.Background(), process.Command{Binary: "dagflow-no-such-binary"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		t.Error("a binary that never started is not an exit error")
	}
}
