package state

import (
	"context"
	"time"
)

// historyLimit bounds the number of completed deployments kept on disk.
const historyLimit = 20

// Record captures one deployment attempt from precheck to its terminal phase.
type Record struct {
	Phase            string            `json:"phase"`
	StackFingerprint string            `json:"stack_fingerprint,omitempty"`
	BackupRefs       map[string]string `json:"backup_refs,omitempty"`
	Endpoint         string            `json:"endpoint,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// State is the persisted deployment ledger. Current is the in-flight
// deployment, nil when nothing is running.
type State struct {
	Current *Record  `json:"current,omitempty"`
	History []Record `json:"history,omitempty"`
}

// Store defines the interface for persisting deployment state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Begin starts tracking a new deployment attempt. An abandoned in-flight
// record is archived rather than dropped.
func (s *State) Begin(record Record) {
	if s.Current != nil {
		s.archive(*s.Current)
	}
	s.Current = &record
}

// Update replaces the in-flight record.
func (s *State) Update(record Record) {
	s.Current = &record
}

// Finish archives the in-flight record in its terminal phase.
func (s *State) Finish(record Record) {
	s.archive(record)
	s.Current = nil
}

// LastInPhase returns the most recent archived record that ended in the
// given phase, or nil.
func (s *State) LastInPhase(phase string) *Record {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Phase == phase {
			return &s.History[i]
		}
	}
	return nil
}

func (s *State) archive(record Record) {
	s.History = append(s.History, record)
	if len(s.History) > historyLimit {
		s.History = s.History[len(s.History)-historyLimit:]
	}
}
