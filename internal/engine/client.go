package engine

import (
	"context"

	"github.com/docker/go-connections/nat"
)

// Container is the runtime view of one compose-managed container.
type Container struct {
	ID      string
	Name    string     // container name, leading slash stripped
	Service string     // compose service label
	Image   string     // image reference, digest suffix stripped
	State   string     // "running", "exited", ...
	Status  string     // human readable, e.g. "Up 3 hours (healthy)"
	Ports   []nat.Port // host-published ports
}

// Running reports whether the container is in the running state.
func (c Container) Running() bool {
	return c.State == "running"
}

// Client defines the interface for container engine interactions.
// This interface enables mocking in tests.
type Client interface {
	// Ping validates connectivity to the Docker daemon.
	Ping(ctx context.Context) error

	// ProjectContainers lists containers belonging to a compose project,
	// including stopped ones.
	ProjectContainers(ctx context.Context, project string) ([]Container, error)

	// Close releases resources associated with the client.
	Close() error
}

// RunningServices returns the distinct compose service names with at least
// one running container.
func RunningServices(containers []Container) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, c := range containers {
		if !c.Running() || c.Service == "" {
			continue
		}
		if _, ok := seen[c.Service]; ok {
			continue
		}
		seen[c.Service] = struct{}{}
		names = append(names, c.Service)
	}
	return names
}
