package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusStopped   HealthStatus = "stopped"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a lifecycle-managed service.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string
	Start(ctx context.Context) error
	// Stop releases resources. It is only called after a successful Start.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Hooks adapts plain functions to Component. Nil hooks are no-ops; a nil
// Check reports healthy.
type Hooks struct {
	ID      string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
	Check   func(ctx context.Context) error
}

func (h *Hooks) Name() string { return h.ID }

func (h *Hooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

func (h *Hooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

func (h *Hooks) Health(ctx context.Context) Health {
	return Check(ctx, h.ID, h.Check)
}

// Check turns a probe error into a Health value.
func Check(ctx context.Context, name string, probe func(context.Context) error) Health {
	if probe == nil {
		return Health{Name: name, Status: StatusHealthy}
	}
	if err := probe(ctx); err != nil {
		return Health{Name: name, Status: StatusUnhealthy, Message: err.Error()}
	}
	return Health{Name: name, Status: StatusHealthy}
}
