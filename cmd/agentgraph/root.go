package main

import (
	"github.com/spf13/cobra"

	"github.com/flowgraph/agentgraph/internal/infrastructure/config"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "agentgraph",
		Short: "agentgraph runs stateful agent graphs",
		Long: `agentgraph compiles the registered agent graphs and runs them once from the
command line or serves them, with threads and runs, over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default $AGENTGRAPH_CONFIG)")

	root.AddCommand(
		newInvokeCmd(opts),
		newServeCmd(opts),
		newGraphCmd(opts),
		newVersionCmd(),
	)
	return root
}
