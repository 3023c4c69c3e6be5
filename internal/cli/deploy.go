package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nholik/stack-warden/internal/component"
	"github.com/nholik/stack-warden/internal/deploy"
	"github.com/nholik/stack-warden/internal/engine"
	"github.com/nholik/stack-warden/internal/state"
)

func newDeployCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the stack: precheck, backup, build, swap, health poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.newManager()
			if err != nil {
				return err
			}

			eng, err := engine.NewDockerClient(a.cfg.DockerHost, 0)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := eng.Close(); closeErr != nil {
					a.logger.Warn().Err(closeErr).Msg("failed to close docker client")
				}
			}()

			store := state.NewFileStore(a.cfg.StateFile, a.logger)
			orchestrator := deploy.New(a.logger, a.cfg, manager, eng, store)

			result, err := orchestrator.Run(cmd.Context())
			if err != nil {
				printRestoreCandidates(cmd, err)
				return err
			}

			if result.Endpoint != "" {
				cmd.Printf("stack healthy, API available at http://%s\n", result.Endpoint)
			} else {
				cmd.Println("stack healthy")
			}
			for comp, path := range result.BackupRefs {
				cmd.Printf("pre-deploy snapshot %s: %s\n", comp, path)
			}
			return nil
		},
	}
}

// printRestoreCandidates tells the operator which artifact to restore from
// when a deployment was rolled back.
func printRestoreCandidates(cmd *cobra.Command, err error) {
	var candidates map[component.Component]string

	var startErr *deploy.StartError
	var timeoutErr *deploy.HealthTimeoutError
	switch {
	case errors.As(err, &startErr):
		candidates = startErr.Candidates
	case errors.As(err, &timeoutErr):
		candidates = timeoutErr.Candidates
	}

	for comp, path := range candidates {
		cmd.PrintErrf("restore candidate: stack-warden restore %s %s\n", comp, path)
	}
}
