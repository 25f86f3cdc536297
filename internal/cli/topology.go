package cli

import (
	"fmt"

	"github.com/me/govm/internal/config"
	"github.com/spf13/cobra"
)

func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology [config]",
		Short: "Validate a config file and print its execution units",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if len(args) == 1 {
				var err error
				if cfg, err = config.Load(args[0]); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s  %-6s  %s\n", "UNIT TYPE", "COUNT", "PARALLEL IDS")
			fmt.Fprintf(out, "%-16s  %-6s  %s\n", "---------", "-----", "------------")
			for _, u := range cfg.Units {
				fmt.Fprintf(out, "%-16s  %-6d  0..%d\n", u.Type, u.Count, u.Count-1)
			}
			fmt.Fprintf(out, "\n%d execution units, tick every %s\n", cfg.TotalUnits(), cfg.Scheduler.TickInterval)
			if cfg.Scheduler.MaxWaitingPerObject > 0 || cfg.Scheduler.MaxInbound > 0 {
				fmt.Fprintf(out, "backpressure: max_waiting_per_object=%d max_inbound=%d\n",
					cfg.Scheduler.MaxWaitingPerObject, cfg.Scheduler.MaxInbound)
			}
			return nil
		},
	}
}
