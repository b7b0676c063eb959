package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/smazurov/torfleet/internal/logging"
	"github.com/spf13/cobra"
)

// CreateStartCmd creates the start command. cfg is read when the command runs.
func CreateStartCmd(cfg *FleetConfig) *cobra.Command {
	var path string
	var count string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a batch of daemons in the foreground",
		Long: `Stops leftover daemons, starts the requested number of instances, prints their proxy ` +
			`endpoints and keeps running until interrupted. On SIGINT or SIGTERM every instance is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if path == "" {
				path = cfg.DaemonPath
			}
			if count == "" && cfg.DaemonCount > 0 {
				count = strconv.Itoa(cfg.DaemonCount)
			}

			out := c.OutOrStdout()
			sink := logging.NewSink(0)
			defer echoSink(sink, out)()

			sup := cfg.NewSupervisor(sink, nil)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.KillGrace+10*time.Second)
				defer cancel()
				_ = sup.Close(ctx)
			}()

			results, err := sup.StartInstances(path, count)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case res := <-results:
				if res.Survivors == 0 {
					return fmt.Errorf("no instance survived (%d requested)", res.Requested)
				}
				for _, ep := range res.Endpoints {
					fmt.Fprintln(out, ep)
				}
			case <-ctx.Done():
				return nil
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Daemon executable (defaults to daemon.path)")
	cmd.Flags().StringVarP(&count, "count", "n", "", "Number of instances (defaults to daemon.count)")
	cmd.SilenceUsage = true
	return cmd
}
