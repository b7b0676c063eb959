package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/smazurov/torfleet/internal/fleet"
	"github.com/spf13/cobra"
)

// CreatePlanCmd creates the plan command.
func CreatePlanCmd(cfg *FleetConfig) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "plan <count>",
		Short: "Print the ports and data directories for count instances",
		Long:  `Shows what start would allocate without touching any process or directory.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if path == "" {
				path = cfg.DaemonPath
			}
			alloc := fleet.AllocatorFor(path, cfg.DataDirName, cfg.SOCKSBase, cfg.ControlBase)

			count, err := strconv.Atoi(args[0])
			if err != nil || count < 1 || count > alloc.MaxInstances() {
				return fmt.Errorf("count must be between 1 and %d", alloc.MaxInstances())
			}

			scheme := cfg.Scheme
			if scheme == "" {
				scheme = fleet.DefaultScheme
			}

			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tSOCKS\tCONTROL\tENDPOINT\tDATA DIRECTORY")
			for _, spec := range alloc.Plan(count) {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
					spec.Index, spec.SOCKSPort, spec.ControlPort, spec.Endpoint(scheme), spec.DataDirectory)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Daemon executable (defaults to daemon.path)")
	cmd.SilenceUsage = true
	return cmd
}
