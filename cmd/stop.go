package cmd

import (
	"fmt"

	"github.com/smazurov/torfleet/internal/logging"
	"github.com/spf13/cobra"
)

// CreateStopCmd creates the stop command.
func CreateStopCmd(cfg *FleetConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop every running daemon by name",
		Long:  `Terminates every process whose name matches the daemon name, including ones started by other torfleet processes.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			out := c.OutOrStdout()
			sink := logging.NewSink(0)
			defer echoSink(sink, out)()

			sup := cfg.NewSupervisor(sink, nil)
			res, err := sup.Shutdown(c.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "found %d, stopped %d, failed %d\n", res.Found, res.Killed, len(res.Errors))
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d process(es) could not be stopped", len(res.Errors))
			}
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
