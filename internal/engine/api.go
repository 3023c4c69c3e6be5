package engine

import (
	"context"

	dockertypes "github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
)

// dockerAPI defines the subset of Docker client operations used by DockerClient.
// This interface enables unit testing without a real Docker daemon by allowing
// mock implementations to be injected.
type dockerAPI interface {
	// Ping checks connectivity to the Docker daemon.
	Ping(ctx context.Context) (dockertypes.Ping, error)

	// ContainerList returns containers matching the given options.
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]dockertypes.Container, error)

	// Close releases resources associated with the client.
	Close() error
}

// Ensure the official Docker client satisfies our interface at compile time.
var _ dockerAPI = (*dockerClientAdapter)(nil)

// dockerClientAdapter wraps the official Docker client to satisfy the dockerAPI
// interface. The official client.Client carries many more methods than we use,
// so the adapter pins down the surface we depend on.
type dockerClientAdapter struct {
	client dockerClientInterface
}

// dockerClientInterface captures the methods we use from *client.Client.
type dockerClientInterface interface {
	Ping(ctx context.Context) (dockertypes.Ping, error)
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]dockertypes.Container, error)
	Close() error
}

func (a *dockerClientAdapter) Ping(ctx context.Context) (dockertypes.Ping, error) {
	return a.client.Ping(ctx)
}

func (a *dockerClientAdapter) ContainerList(ctx context.Context, options containertypes.ListOptions) ([]dockertypes.Container, error) {
	return a.client.ContainerList(ctx, options)
}

func (a *dockerClientAdapter) Close() error {
	return a.client.Close()
}
