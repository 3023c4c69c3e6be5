package component

import "fmt"

// Spec describes how a component is dumped and restored. SQL components run
// command pipelines; archive components snapshot a data directory.
type Spec struct {
	// DumpCommand writes a plain SQL dump to stdout. Required for FormatSQL.
	DumpCommand []string
	// RestoreCommand reads a plain SQL dump from stdin. Required for FormatSQL.
	RestoreCommand []string
	// ResetCommand drops and recreates the live schema before a restore.
	// Optional; only meaningful for FormatSQL.
	ResetCommand []string
	// DataDir is the live storage directory. Required for FormatArchive.
	DataDir string
}

// Validate checks that the spec carries what the component's format needs.
func (s Spec) Validate(c Component) error {
	switch FormatOf(c) {
	case FormatSQL:
		if len(s.DumpCommand) == 0 {
			return fmt.Errorf("component %s: dump command is required", c)
		}
		if len(s.RestoreCommand) == 0 {
			return fmt.Errorf("component %s: restore command is required", c)
		}
	case FormatArchive:
		if s.DataDir == "" {
			return fmt.Errorf("component %s: data dir is required", c)
		}
	}
	return nil
}
