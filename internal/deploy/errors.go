package deploy

import (
	"fmt"
	"time"

	"github.com/nholik/stack-warden/internal/component"
)

// PrecheckError reports a failed pre-deployment check.
type PrecheckError struct {
	Item string
	Err  error
}

func (e *PrecheckError) Error() string {
	return fmt.Sprintf("precheck %s: %v", e.Item, e.Err)
}

func (e *PrecheckError) Unwrap() error {
	return e.Err
}

// HealthTimeoutError reports that the new stack never became healthy within
// the deadline. Candidates lists the pre-deployment snapshots available for
// a manual restore.
type HealthTimeoutError struct {
	Endpoint   string
	Deadline   time.Duration
	Candidates map[component.Component]string
	Err        error
}

func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("stack did not become healthy at %s within %s", e.Endpoint, e.Deadline)
}

func (e *HealthTimeoutError) Unwrap() error {
	return e.Err
}

// StartError reports that the new stack failed to start after the old one was
// already stopped. Candidates lists the pre-deployment snapshots available
// for a manual restore.
type StartError struct {
	Candidates map[component.Component]string
	Err        error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start new stack: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ConcurrencyError reports that another deployment already holds the lock.
type ConcurrencyError struct {
	LockPath string
	Owner    string
}

func (e *ConcurrencyError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("deployment already in progress (lock %s held by %s)", e.LockPath, e.Owner)
	}
	return fmt.Sprintf("deployment already in progress (lock %s held)", e.LockPath)
}
