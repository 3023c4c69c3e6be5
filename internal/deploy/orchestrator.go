package deploy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stack-warden/internal/component"
	"github.com/nholik/stack-warden/internal/config"
	"github.com/nholik/stack-warden/internal/engine"
	"github.com/nholik/stack-warden/internal/snapshot"
	"github.com/nholik/stack-warden/internal/stack"
	"github.com/nholik/stack-warden/internal/state"
)

const probeRequestTimeout = 5 * time.Second

// Backups is the snapshot surface the orchestrator needs.
type Backups interface {
	CreateAll(ctx context.Context) ([]snapshot.Snapshot, map[component.Component]error)
	IncompleteMarker(comp component.Component) (string, bool)
	Dir() string
}

// Engine is the container engine surface the orchestrator needs.
type Engine interface {
	Ping(ctx context.Context) error
	ProjectContainers(ctx context.Context, project string) ([]engine.Container, error)
}

// CommandRunner executes an external command and waits for it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Prober checks whether the stack answers its health endpoint.
type Prober func(ctx context.Context, url string) error

// Result summarizes a finished deployment attempt.
type Result struct {
	Phase      Phase
	Endpoint   string
	BackupRefs map[component.Component]string
}

// Orchestrator drives a deployment through its phases.
type Orchestrator struct {
	logger  zerolog.Logger
	cfg     config.Config
	backups Backups
	engine  Engine
	store   state.Store

	run   CommandRunner
	probe Prober
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCommandRunner replaces the external command runner.
func WithCommandRunner(run CommandRunner) Option {
	return func(o *Orchestrator) {
		o.run = run
	}
}

// WithProber replaces the health prober.
func WithProber(probe Prober) Option {
	return func(o *Orchestrator) {
		o.probe = probe
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSleep overrides the poll delay, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// New creates a deployment orchestrator.
func New(logger zerolog.Logger, cfg config.Config, backups Backups, eng Engine, store state.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:  logger,
		cfg:     cfg,
		backups: backups,
		engine:  eng,
		store:   store,
		run:     defaultCommandRunner,
		probe:   defaultProber,
		now:     time.Now,
		sleep:   sleepWithContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one full deployment attempt. Concurrent attempts are rejected
// before any state is touched.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	release, err := acquireLock(o.cfg.LockFile)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if releaseErr := release(); releaseErr != nil {
			o.logger.Warn().Err(releaseErr).Str("path", o.cfg.LockFile).Msg("failed to release deployment lock")
		}
	}()

	machine := NewStackState()
	ledger, err := o.store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load deployment state: %w", err)
	}

	record := state.Record{
		Phase:     string(PhasePrechecking),
		StartedAt: o.now().UTC(),
		UpdatedAt: o.now().UTC(),
	}
	ledger.Begin(record)
	result := Result{BackupRefs: map[component.Component]string{}}

	fail := func(phaseErr error) (Result, error) {
		record.Phase = string(PhaseFailed)
		record.LastError = phaseErr.Error()
		record.UpdatedAt = o.now().UTC()
		ledger.Finish(record)
		o.persist(ctx, ledger)
		result.Phase = PhaseFailed
		return result, phaseErr
	}

	advance := func(next Phase) error {
		if err := machine.Advance(next); err != nil {
			return err
		}
		record.Phase = string(next)
		record.UpdatedAt = o.now().UTC()
		ledger.Update(record)
		o.persist(ctx, ledger)
		o.logger.Info().Str("phase", string(next)).Msg("deployment phase")
		return nil
	}

	if err := advance(PhasePrechecking); err != nil {
		return fail(err)
	}
	definition, body, err := o.precheck(ctx)
	if err != nil {
		return fail(err)
	}
	fingerprint, err := stack.Fingerprint(body)
	if err != nil {
		return fail(err)
	}
	record.StackFingerprint = fingerprint

	if err := advance(PhaseBackingUp); err != nil {
		return fail(err)
	}
	if o.cfg.BackupBeforeDeploy {
		snaps, failures := o.backups.CreateAll(ctx)
		for _, snap := range snaps {
			result.BackupRefs[snap.Component] = snap.Path
		}
		record.BackupRefs = backupRefStrings(result.BackupRefs)
		if len(failures) > 0 {
			if o.cfg.RequireBackup {
				return fail(fmt.Errorf("pre-deployment backup failed: %w", firstFailure(failures)))
			}
			for comp, failErr := range failures {
				o.logger.Warn().Str("component", string(comp)).Err(failErr).
					Msg("pre-deployment backup failed, continuing")
			}
		}
	} else {
		o.logger.Info().Msg("pre-deployment backup disabled")
	}

	if err := advance(PhaseBuilding); err != nil {
		return fail(err)
	}
	if err := o.compose(ctx, "build"); err != nil {
		return fail(fmt.Errorf("build stack: %w", err))
	}

	if err := advance(PhaseStoppingOld); err != nil {
		return fail(err)
	}
	if err := o.stopOld(ctx); err != nil {
		return fail(fmt.Errorf("stop old stack: %w", err))
	}

	if err := advance(PhaseStartingNew); err != nil {
		return fail(err)
	}
	if err := o.compose(ctx, "up", "-d"); err != nil {
		if advErr := advance(PhaseRollingBack); advErr != nil {
			return fail(advErr)
		}
		return fail(&StartError{
			Candidates: o.rollback(ctx, result.BackupRefs),
			Err:        err,
		})
	}

	if err := advance(PhasePollingHealth); err != nil {
		return fail(err)
	}
	if err := o.pollHealth(ctx); err != nil {
		if advErr := advance(PhaseRollingBack); advErr != nil {
			return fail(advErr)
		}
		timeoutErr := &HealthTimeoutError{
			Endpoint:   o.cfg.HealthURL,
			Deadline:   o.cfg.HealthTimeout,
			Candidates: o.rollback(ctx, result.BackupRefs),
			Err:        err,
		}
		return fail(timeoutErr)
	}

	if err := machine.Advance(PhaseHealthy); err != nil {
		return fail(err)
	}
	result.Phase = PhaseHealthy
	result.Endpoint = stackEndpoint(definition)
	record.Phase = string(PhaseHealthy)
	record.Endpoint = result.Endpoint
	record.UpdatedAt = o.now().UTC()
	ledger.Finish(record)
	o.persist(ctx, ledger)

	o.logger.Info().Str("endpoint", result.Endpoint).Msg("stack healthy")
	return result, nil
}

// precheck validates the environment before anything is mutated.
func (o *Orchestrator) precheck(ctx context.Context) (stack.Definition, []byte, error) {
	if err := o.engine.Ping(ctx); err != nil {
		return stack.Definition{}, nil, &PrecheckError{Item: "docker daemon", Err: err}
	}

	if !o.cfg.APIKeyConfigured() {
		return stack.Definition{}, nil, &PrecheckError{
			Item: "api key",
			Err:  errors.New("OPENAI_API_KEY is missing or a placeholder"),
		}
	}

	body, err := stack.LoadFile(o.cfg.ComposeFile, 0)
	if err != nil {
		return stack.Definition{}, nil, &PrecheckError{Item: "compose file", Err: err}
	}
	definition, err := stack.ParseDefinition(ctx, o.cfg.ProjectName, body)
	if err != nil {
		return stack.Definition{}, nil, &PrecheckError{Item: "compose file", Err: err}
	}

	if err := ensureWritable(o.backups.Dir()); err != nil {
		return stack.Definition{}, nil, &PrecheckError{Item: "backup directory", Err: err}
	}

	for _, comp := range component.All() {
		if marker, found := o.backups.IncompleteMarker(comp); found {
			return stack.Definition{}, nil, &PrecheckError{
				Item: "restore marker",
				Err:  fmt.Errorf("component %s has an unfinished restore (%s)", comp, marker),
			}
		}
	}

	return definition, body, nil
}

// stopOld brings down the running stack. A stack with no running containers
// is treated as already stopped.
func (o *Orchestrator) stopOld(ctx context.Context) error {
	containers, err := o.engine.ProjectContainers(ctx, o.cfg.ProjectName)
	if err != nil {
		o.logger.Warn().Err(err).Msg("could not inspect running stack, attempting stop anyway")
	} else if len(engine.RunningServices(containers)) == 0 {
		o.logger.Info().Msg("no running containers, skipping stop")
		return nil
	}
	return o.compose(ctx, "down", "--remove-orphans")
}

// pollHealth probes the health endpoint at a fixed interval until it answers
// or the deadline passes.
func (o *Orchestrator) pollHealth(ctx context.Context) error {
	deadline := o.now().Add(o.cfg.HealthTimeout)
	attempt := 0
	for {
		attempt++
		err := o.probe(ctx, o.cfg.HealthURL)
		if err == nil {
			o.logger.Info().Int("attempt", attempt).Msg("health check passed")
			return nil
		}
		o.logger.Debug().Int("attempt", attempt).Err(err).Msg("health check not ready")

		if !o.now().Add(o.cfg.HealthPollInterval).Before(deadline) {
			return fmt.Errorf("health deadline exceeded after %d attempts: %w", attempt, err)
		}
		if err := o.sleep(ctx, o.cfg.HealthPollInterval); err != nil {
			return err
		}
	}
}

// rollback stops the new stack after a failed start or health check. The
// stop is unconditional. Data is never restored automatically; the returned
// refs are candidates for a manual restore, surfaced only when
// rollback-on-failure is enabled.
func (o *Orchestrator) rollback(ctx context.Context, refs map[component.Component]string) map[component.Component]string {
	if err := o.compose(ctx, "down"); err != nil {
		o.logger.Error().Err(err).Msg("failed to stop unhealthy stack")
	}
	if !o.cfg.RollbackOnFailure {
		o.logger.Warn().Msg("rollback disabled, restore candidates not surfaced")
		return nil
	}
	o.logger.Warn().Msg("unhealthy stack stopped, restore candidates recorded")
	return refs
}

func (o *Orchestrator) compose(ctx context.Context, args ...string) error {
	base := []string{"compose", "-f", o.cfg.ComposeFile, "-p", o.cfg.ProjectName}
	return o.run(ctx, "docker", append(base, args...)...)
}

func (o *Orchestrator) persist(ctx context.Context, ledger state.State) {
	if err := o.store.Save(ctx, ledger); err != nil {
		o.logger.Warn().Err(err).Msg("failed to persist deployment state")
	}
}

func stackEndpoint(definition stack.Definition) string {
	if endpoint := definition.PublishedEndpoint("api"); endpoint != "" {
		return endpoint
	}
	for _, name := range definition.ServiceNames() {
		if endpoint := definition.PublishedEndpoint(name); endpoint != "" {
			return endpoint
		}
	}
	return ""
}

func backupRefStrings(refs map[component.Component]string) map[string]string {
	if len(refs) == 0 {
		return nil
	}
	out := make(map[string]string, len(refs))
	for comp, path := range refs {
		out[string(comp)] = path
	}
	return out
}

func firstFailure(failures map[component.Component]error) error {
	for _, comp := range component.All() {
		if err, ok := failures[comp]; ok {
			return fmt.Errorf("%s: %w", comp, err)
		}
	}
	for comp, err := range failures {
		return fmt.Errorf("%s: %w", comp, err)
	}
	return nil
}

func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, outputSuffix(output))
	}
	return nil
}

func defaultProber(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: probeRequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func outputSuffix(output []byte) string {
	const limit = 512
	trimmed := string(output)
	if len(trimmed) > limit {
		trimmed = "..." + trimmed[len(trimmed)-limit:]
	}
	return trimmed
}
