package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// acquireLock takes an exclusive deployment lock by creating the lock file.
// The file holds the owner's pid for diagnostics. A held lock yields a
// ConcurrencyError without touching any other state.
func acquireLock(path string) (release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			owner := ""
			if data, readErr := os.ReadFile(path); readErr == nil {
				owner = strings.TrimSpace(string(data))
			}
			return nil, &ConcurrencyError{LockPath: path, Owner: owner}
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if _, err := fmt.Fprintf(file, "pid %d\n", os.Getpid()); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close lock: %w", err)
	}

	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}
