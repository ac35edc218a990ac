package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/ace221390/work.ink/internal/observability"
)

func newRunCmd(factory ComponentFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Launch or attach to a browser and walk every gate its tabs load",
		Long: `Watches every tab of the browser. Loads of an origin page hand the destination
over to the gate; loads of the gate wait out the challenge, accept the consent
prompt and continue to the destination. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			runCtx, cancel := context.WithCancel(cmd.Context())

			c, err := factory.Create(runCtx, config.Get(), nil)
			if err != nil {
				cancel()
				return err
			}
			defer func() {
				cancel()
				c.Shutdown()
			}()

			c.Engine.Start(runCtx, c.Visits)
			if err := c.Browser.Watch(runCtx, c.Visits); err != nil {
				return err
			}

			logger.Info("Watching browser tabs. Press Ctrl+C to stop.")
			<-runCtx.Done()
			return nil
		},
	}
}
