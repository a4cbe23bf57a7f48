package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component represents a lifecycle-managed piece of test infrastructure,
// such as a connection provider backing an ephemeral store.
type Component interface {
	// Name returns the name of the component.
	Name() string

	// Start acquires the resources the component needs.
	Start(ctx context.Context) error

	// Stop releases everything Start acquired. Stopping twice is a no-op.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description holds summary information about a component.
type Description struct {
	// Name is the human-readable display name. If empty, Name() is used.
	Name string
	// Type categorizes the component, e.g. "sqlite".
	Type string
	// Details is a human-readable one-liner, e.g. the backing file path.
	Details string
}

// Describable is optionally implemented by components that can report
// what they are and how they are configured.
type Describable interface {
	Describe() Description
}

// Describe returns the component's description, falling back to its name.
func Describe(c Component) Description {
	if d, ok := c.(Describable); ok {
		desc := d.Describe()
		if desc.Name == "" {
			desc.Name = c.Name()
		}
		return desc
	}
	return Description{Name: c.Name()}
}
