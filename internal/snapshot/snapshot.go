package snapshot

import (
	"time"

	"github.com/nholik/stack-warden/internal/component"
)

// Snapshot is one immutable backup artifact for one component.
type Snapshot struct {
	Component component.Component `json:"component"`
	CreatedAt time.Time           `json:"created_at"`
	Path      string              `json:"path"`
	SizeBytes int64               `json:"size_bytes"`
	Format    component.Format    `json:"format"`
}

// ValidationResult reports an integrity check outcome. A failed check is a
// finding, not an error: the artifact is never touched.
type ValidationResult struct {
	OK     bool
	Detail string
}
