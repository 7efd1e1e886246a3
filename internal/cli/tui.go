package cli

import (
	"github.com/spf13/cobra"

	"github.com/and161185/docdesk/internal/tui"
)

func (r *runner) tuiCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := r.setup(cmd)
			if err != nil {
				return err
			}
			defer r.close()
			addr := a.Config.MetricsAddr
			if cmd.Flags().Changed("metrics-addr") {
				addr = metricsAddr
			}
			return tui.Run(cmd.Context(), a, addr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}
