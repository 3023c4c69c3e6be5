package stack

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
)

// Definition represents the normalized desired stack from a compose file.
type Definition struct {
	Name     string
	Services map[string]Service
}

// Service captures the fields we track for a service.
type Service struct {
	Image     string
	Ports     []PortBinding
	DependsOn []string
	Volumes   []string
}

// PortBinding is a host-published container port.
type PortBinding struct {
	Published string
	Target    uint32
	Protocol  string
}

// ParseDefinition parses compose content into a normalized stack model.
func ParseDefinition(ctx context.Context, projectName string, body []byte) (Definition, error) {
	if len(body) == 0 {
		return Definition{}, errors.New("compose body is empty")
	}

	details := types.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "compose.yml",
				Content:  body,
			},
		},
		Environment: types.Mapping{},
	}

	project, err := loader.LoadWithContext(ctx, details, func(opts *loader.Options) {
		opts.SetProjectName(projectName, false)
	})
	if err != nil {
		return Definition{}, fmt.Errorf("load compose: %w", err)
	}
	if len(project.Services) == 0 {
		return Definition{}, errors.New("compose has no services")
	}

	def := Definition{
		Name:     project.Name,
		Services: make(map[string]Service, len(project.Services)),
	}

	for name, service := range project.Services {
		if service.Image == "" && service.Build == nil {
			return Definition{}, fmt.Errorf("service %q has neither image nor build", name)
		}

		ports := make([]PortBinding, 0, len(service.Ports))
		for _, port := range service.Ports {
			if port.Published == "" {
				continue
			}
			ports = append(ports, PortBinding{
				Published: port.Published,
				Target:    port.Target,
				Protocol:  port.Protocol,
			})
		}
		sort.Slice(ports, func(i, j int) bool { return ports[i].Published < ports[j].Published })

		deps := make([]string, 0, len(service.DependsOn))
		for dep := range service.DependsOn {
			deps = append(deps, dep)
		}
		sort.Strings(deps)

		volumes := make([]string, 0, len(service.Volumes))
		for _, vol := range service.Volumes {
			if vol.Source == "" {
				continue
			}
			volumes = append(volumes, vol.Source)
		}
		sort.Strings(volumes)

		def.Services[name] = Service{
			Image:     service.Image,
			Ports:     ports,
			DependsOn: deps,
			Volumes:   volumes,
		}
	}

	return def, nil
}

// PublishedEndpoint returns the first host-published port of the named
// service as a host:port address, or empty when none is published.
func (d Definition) PublishedEndpoint(service string) string {
	svc, ok := d.Services[service]
	if !ok || len(svc.Ports) == 0 {
		return ""
	}
	return fmt.Sprintf("localhost:%s", svc.Ports[0].Published)
}

// ServiceNames returns the stack's service names in sorted order.
func (d Definition) ServiceNames() []string {
	names := make([]string, 0, len(d.Services))
	for name := range d.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
