package component

import (
	"fmt"
	"strings"
	"time"
)

// Component identifies a stateful service with its own backup procedure.
type Component string

const (
	// PrimaryDatastore is the relational/vector store (Postgres with pgvector).
	PrimaryDatastore Component = "primary-datastore"
	// GraphStore is the graph database (Neo4j).
	GraphStore Component = "graph-store"
	// AuxiliaryStore holds history and auxiliary data directories.
	AuxiliaryStore Component = "auxiliary-store"
)

// Format describes the artifact container for a component.
type Format string

const (
	// FormatSQL is a gzip-compressed SQL dump.
	FormatSQL Format = "sql.gz"
	// FormatArchive is a gzip-compressed directory archive.
	FormatArchive Format = "tar.gz"
)

const timestampLayout = "20060102_150405"

// All returns every known component in a stable order.
func All() []Component {
	return []Component{PrimaryDatastore, GraphStore, AuxiliaryStore}
}

// Parse resolves a user-supplied component name.
func Parse(name string) (Component, error) {
	for _, c := range All() {
		if string(c) == strings.TrimSpace(name) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown component %q (expected one of %s)", name, joinAll())
}

// FormatOf returns the artifact format used by the component.
func FormatOf(c Component) Format {
	if c == PrimaryDatastore {
		return FormatSQL
	}
	return FormatArchive
}

// ArtifactName builds the canonical artifact filename for a component at the
// given creation time: <component>_<YYYYMMDD>_<HHMMSS>.<ext>. Names sort
// lexicographically in creation order.
func ArtifactName(c Component, createdAt time.Time) string {
	return fmt.Sprintf("%s_%s.%s", c, createdAt.UTC().Format(timestampLayout), FormatOf(c))
}

// ParseArtifactName extracts the component and creation time from an artifact
// filename produced by ArtifactName.
func ParseArtifactName(name string) (Component, time.Time, error) {
	for _, c := range All() {
		prefix := string(c) + "_"
		suffix := "." + string(FormatOf(c))
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		createdAt, err := time.Parse(timestampLayout, stamp)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("artifact %q: bad timestamp: %w", name, err)
		}
		return c, createdAt.UTC(), nil
	}
	return "", time.Time{}, fmt.Errorf("artifact %q does not match any component naming", name)
}

func joinAll() string {
	names := make([]string, 0, len(All()))
	for _, c := range All() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
