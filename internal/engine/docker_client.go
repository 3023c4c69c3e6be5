package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const defaultAPITimeout = 5 * time.Second

// composeProjectLabel marks containers managed by docker compose.
const (
	composeProjectLabel = "com.docker.compose.project"
	composeServiceLabel = "com.docker.compose.service"
)

// DockerClient implements Client using the official Docker Go SDK.
type DockerClient struct {
	api     dockerAPI
	timeout time.Duration
}

// NewDockerClient initializes a Docker client for the given API host.
func NewDockerClient(host string, timeout time.Duration) (*DockerClient, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	httpClient := &http.Client{Timeout: timeout}

	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
		client.WithHTTPClient(httpClient),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	return &DockerClient{
		api:     &dockerClientAdapter{client: api},
		timeout: timeout,
	}, nil
}

// Ping validates connectivity to the Docker daemon.
func (c *DockerClient) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("docker client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.Ping(ctx)
	return err
}

// ProjectContainers lists containers labeled with the given compose project,
// including stopped ones.
func (c *DockerClient) ProjectContainers(ctx context.Context, project string) ([]Container, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("docker client is not initialized")
	}
	if project == "" {
		return nil, errors.New("project name must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := filters.NewArgs()
	query.Add("label", fmt.Sprintf("%s=%s", composeProjectLabel, project))

	summaries, err := c.api.ContainerList(ctx, containertypes.ListOptions{
		All:     true,
		Filters: query,
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	containers := make([]Container, 0, len(summaries))
	for _, summary := range summaries {
		name := ""
		if len(summary.Names) > 0 {
			name = strings.TrimPrefix(summary.Names[0], "/")
		}

		var ports []nat.Port
		for _, port := range summary.Ports {
			if port.PublicPort == 0 {
				continue
			}
			proto := port.Type
			if proto == "" {
				proto = "tcp"
			}
			ports = append(ports, nat.Port(fmt.Sprintf("%d/%s", port.PublicPort, proto)))
		}
		sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

		containers = append(containers, Container{
			ID:      summary.ID,
			Name:    name,
			Service: summary.Labels[composeServiceLabel],
			Image:   NormalizeImage(summary.Image),
			State:   summary.State,
			Status:  summary.Status,
			Ports:   ports,
		})
	}

	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })
	return containers, nil
}

// Close releases the underlying Docker client.
func (c *DockerClient) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}
