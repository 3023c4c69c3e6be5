package stack

import (
	"context"
	"strings"
	"testing"
)

const memoryStackYAML = `
services:
  api:
    image: memory-api:latest
    ports:
      - "8000:8000"
    depends_on:
      - postgres
      - neo4j
  postgres:
    image: pgvector/pgvector:pg16
    volumes:
      - postgres_data:/var/lib/postgresql/data
  neo4j:
    image: neo4j:5
    volumes:
      - neo4j_data:/data
volumes:
  postgres_data:
  neo4j_data:
`

func TestParseDefinition_Basic(t *testing.T) {
	def, err := ParseDefinition(context.Background(), "memory-stack", []byte(memoryStackYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if def.Name != "memory-stack" {
		t.Fatalf("unexpected project name: %q", def.Name)
	}

	api, ok := def.Services["api"]
	if !ok {
		t.Fatalf("expected api service")
	}
	if api.Image != "memory-api:latest" {
		t.Fatalf("unexpected api image: %q", api.Image)
	}
	if len(api.Ports) != 1 || api.Ports[0].Published != "8000" || api.Ports[0].Target != 8000 {
		t.Fatalf("unexpected api ports: %+v", api.Ports)
	}
	if len(api.DependsOn) != 2 || api.DependsOn[0] != "neo4j" || api.DependsOn[1] != "postgres" {
		t.Fatalf("unexpected api dependencies: %v", api.DependsOn)
	}

	postgres, ok := def.Services["postgres"]
	if !ok {
		t.Fatalf("expected postgres service")
	}
	if len(postgres.Volumes) != 1 || postgres.Volumes[0] != "postgres_data" {
		t.Fatalf("unexpected postgres volumes: %v", postgres.Volumes)
	}
}

func TestParseDefinition_ServiceNames(t *testing.T) {
	def, err := ParseDefinition(context.Background(), "memory-stack", []byte(memoryStackYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := def.ServiceNames()
	want := []string{"api", "neo4j", "postgres"}
	if len(names) != len(want) {
		t.Fatalf("unexpected names: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected names: %v", names)
		}
	}
}

func TestParseDefinition_PublishedEndpoint(t *testing.T) {
	def, err := ParseDefinition(context.Background(), "memory-stack", []byte(memoryStackYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := def.PublishedEndpoint("api"); got != "localhost:8000" {
		t.Fatalf("unexpected endpoint: %q", got)
	}
	if got := def.PublishedEndpoint("postgres"); got != "" {
		t.Fatalf("expected empty endpoint for unpublished service, got %q", got)
	}
	if got := def.PublishedEndpoint("missing"); got != "" {
		t.Fatalf("expected empty endpoint for unknown service, got %q", got)
	}
}

func TestParseDefinition_EmptyBody(t *testing.T) {
	if _, err := ParseDefinition(context.Background(), "memory-stack", nil); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestParseDefinition_NoServices(t *testing.T) {
	_, err := ParseDefinition(context.Background(), "memory-stack", []byte("volumes:\n  data:\n"))
	if err == nil {
		t.Fatalf("expected error for compose without services")
	}
}

func TestParseDefinition_MissingImageAndBuild(t *testing.T) {
	composeYAML := `
services:
  broken:
    restart: always
`
	_, err := ParseDefinition(context.Background(), "memory-stack", []byte(composeYAML))
	if err == nil {
		t.Fatalf("expected error for service without image or build")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should name the service: %v", err)
	}
}
