package runner

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/logger"
)

// Call is what an action receives.
type Call struct {
	Task *dag.TaskNode
	// Name and Version are parsed from uses: "echo@v1" gives "echo" and "v1".
	Name    string
	Version string
	Env     map[string]string
	State   *dag.State
	Stdout  io.Writer
	Log     *logger.Logger
}

// Action implements a uses task.
type Action func(ctx context.Context, call Call) error

// Registry maps action names to implementations. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates a registry holding the built-in actions echo, sleep
// and fail.
func NewRegistry() *Registry {
	r := &Registry{actions: make(map[string]Action)}
	r.Register("echo", echoAction)
	r.Register("sleep", sleepAction)
	r.Register("fail", failAction)
	return r
}

// Register adds or replaces an action.
func (r *Registry) Register(name string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

// Lookup resolves a uses reference, ignoring any @version suffix.
func (r *Registry) Lookup(uses string) (Action, bool) {
	name, _ := ParseUses(uses)
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseUses splits "name@version".
func ParseUses(uses string) (name, version string) {
	name, version, _ = strings.Cut(uses, "@")
	return name, version
}

// echoAction writes MESSAGE (or the task id) to stdout and stores it as the
// task output.
func echoAction(_ context.Context, call Call) error {
	msg := call.Env["MESSAGE"]
	if msg == "" {
		msg = string(call.Task.ID)
	}
	if call.Stdout != nil {
		if _, err := fmt.Fprintln(call.Stdout, msg); err != nil {
			return err
		}
	}
	call.State.Set(OutputKey(call.Task.ID), msg)
	return nil
}

// sleepAction waits DURATION (default 1s) or until the context is done.
func sleepAction(ctx context.Context, call Call) error {
	d := time.Second
	if raw := call.Env["DURATION"]; raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("sleep: invalid DURATION %q: %w", raw, err)
		}
		d = parsed
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// failAction always fails with MESSAGE.
func failAction(_ context.Context, call Call) error {
	msg := call.Env["MESSAGE"]
	if msg == "" {
		msg = "failed on purpose"
	}
	return fmt.Errorf("fail: %s", msg)
}
