package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nholik/stack-warden/internal/component"
)

// ComponentEntry is a single component override in the components file.
type ComponentEntry struct {
	Name           string   `yaml:"name"`
	DumpCommand    []string `yaml:"dump_command,omitempty"`
	RestoreCommand []string `yaml:"restore_command,omitempty"`
	ResetCommand   []string `yaml:"reset_command,omitempty"`
	DataDir        string   `yaml:"data_dir,omitempty"`
}

// ComponentsFile is the parsed YAML structure for component overrides:
// components: [{name, dump_command, restore_command, reset_command, data_dir}]
type ComponentsFile struct {
	Components []ComponentEntry `yaml:"components"`
}

// ComponentSpecs builds the per-component dump/restore specs: defaults derived
// from the compose file, overridden by the components file when configured.
func (c Config) ComponentSpecs() (map[component.Component]component.Spec, error) {
	specs := c.defaultSpecs()

	if c.ComponentsFile != "" {
		entries, err := loadComponentsFile(c.ComponentsFile)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			comp, err := component.Parse(entry.Name)
			if err != nil {
				return nil, fmt.Errorf("components file: %w", err)
			}
			spec := specs[comp]
			if len(entry.DumpCommand) > 0 {
				spec.DumpCommand = entry.DumpCommand
			}
			if len(entry.RestoreCommand) > 0 {
				spec.RestoreCommand = entry.RestoreCommand
			}
			if len(entry.ResetCommand) > 0 {
				spec.ResetCommand = entry.ResetCommand
			}
			if entry.DataDir != "" {
				spec.DataDir = entry.DataDir
			}
			specs[comp] = spec
		}
	}

	for comp, spec := range specs {
		if err := spec.Validate(comp); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

func (c Config) defaultSpecs() map[component.Component]component.Spec {
	composeExec := []string{"docker", "compose", "-f", c.ComposeFile, "-p", c.ProjectName, "exec", "-T"}
	return map[component.Component]component.Spec{
		component.PrimaryDatastore: {
			DumpCommand:    append(append([]string{}, composeExec...), "postgres", "pg_dump", "-U", "postgres", "-d", "postgres"),
			RestoreCommand: append(append([]string{}, composeExec...), "postgres", "psql", "-U", "postgres", "-d", "postgres"),
			ResetCommand: append(append([]string{}, composeExec...), "postgres", "psql", "-U", "postgres", "-d", "postgres",
				"-c", "DROP SCHEMA public CASCADE; CREATE SCHEMA public;"),
		},
		component.GraphStore: {
			DataDir: c.ComponentDataDir("neo4j"),
		},
		component.AuxiliaryStore: {
			DataDir: c.ComponentDataDir("history"),
		},
	}
}

func loadComponentsFile(path string) ([]ComponentEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read components file: %w", err)
	}

	var cf ComponentsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse components file: %w", err)
	}
	if len(cf.Components) == 0 {
		return nil, fmt.Errorf("components file contains no components")
	}

	seen := make(map[string]bool)
	for i, entry := range cf.Components {
		if entry.Name == "" {
			return nil, fmt.Errorf("component %d: name is required", i)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("component %q: duplicate name", entry.Name)
		}
		seen[entry.Name] = true
	}

	return cf.Components, nil
}
