package deploy

import "fmt"

// Phase is one stage of a deployment attempt.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePrechecking   Phase = "prechecking"
	PhaseBackingUp     Phase = "backing-up"
	PhaseBuilding      Phase = "building"
	PhaseStoppingOld   Phase = "stopping-old"
	PhaseStartingNew   Phase = "starting-new"
	PhasePollingHealth Phase = "polling-health"
	PhaseHealthy       Phase = "healthy"
	PhaseRollingBack   Phase = "rolling-back"
	PhaseFailed        Phase = "failed"
)

// transitions is the set of legal phase changes. The machine only moves
// forward; once the old stack is stopped, failures route through rollback
// instead of going straight to failed.
var transitions = map[Phase][]Phase{
	PhaseIdle:          {PhasePrechecking},
	PhasePrechecking:   {PhaseBackingUp, PhaseFailed},
	PhaseBackingUp:     {PhaseBuilding, PhaseFailed},
	PhaseBuilding:      {PhaseStoppingOld, PhaseFailed},
	PhaseStoppingOld:   {PhaseStartingNew, PhaseFailed},
	PhaseStartingNew:   {PhasePollingHealth, PhaseRollingBack},
	PhasePollingHealth: {PhaseHealthy, PhaseRollingBack},
	PhaseRollingBack:   {PhaseFailed},
}

// StackState tracks the phase of an in-flight deployment.
type StackState struct {
	phase Phase
}

// NewStackState returns a state machine in the idle phase.
func NewStackState() *StackState {
	return &StackState{phase: PhaseIdle}
}

// Phase returns the current phase.
func (s *StackState) Phase() Phase {
	return s.phase
}

// Advance moves to the next phase, rejecting any transition the machine
// does not allow.
func (s *StackState) Advance(next Phase) error {
	for _, allowed := range transitions[s.phase] {
		if allowed == next {
			s.phase = next
			return nil
		}
	}
	return fmt.Errorf("illegal phase transition %s -> %s", s.phase, next)
}

// Terminal reports whether the deployment has reached a final phase.
func (s *StackState) Terminal() bool {
	return s.phase == PhaseHealthy || s.phase == PhaseFailed
}
