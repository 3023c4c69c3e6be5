package snapshot

import (
	"fmt"

	"github.com/nholik/stack-warden/internal/component"
)

// CreationError reports a failed snapshot creation. The partial artifact has
// already been removed by the time this is returned.
type CreationError struct {
	Component component.Component
	Op        string
	Err       error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create snapshot for %s: %s: %v", e.Component, e.Op, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// RestoreError reports a failed restore. Marker names the incomplete-restore
// marker left behind so the caller can tell the target is in an unknown state.
type RestoreError struct {
	Component component.Component
	Marker    string
	Err       error
}

func (e *RestoreError) Error() string {
	if e.Marker != "" {
		return fmt.Sprintf("restore %s: %v (target marked incomplete at %s)", e.Component, e.Err, e.Marker)
	}
	return fmt.Sprintf("restore %s: %v", e.Component, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}
