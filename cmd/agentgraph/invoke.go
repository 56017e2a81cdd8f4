package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowgraph/agentgraph/pkg/agentgraph"
	"github.com/flowgraph/agentgraph/pkg/prebuilt/echo"
)

func newInvokeCmd(opts *options) *cobra.Command {
	var (
		input     string
		model     string
		threadID  string
		recursion int
	)
	cmd := &cobra.Command{
		Use:   "invoke [graph]",
		Short: "Run a graph once and print its final state",
		Long: `Compiles the named graph (default "agent"), invokes it with the JSON input
and prints the final state as JSON. With --thread the run continues a thread
stored by the configured checkpoint saver.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := echo.Name
			if len(args) == 1 {
				name = args[0]
			}

			var in map[string]any
			if err := json.Unmarshal([]byte(input), &in); err != nil {
				return fmt.Errorf("parse --input: %w", err)
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			graphs, err := a.build(cmd.Context(), name)
			if err != nil {
				return err
			}

			if model == "" {
				model = opts.cfg.Agent.ModelName
			}
			if recursion == 0 {
				recursion = opts.cfg.Agent.RecursionLimit
			}
			invokeOpts := []agentgraph.InvokeOption{agentgraph.WithRecursionLimit(recursion)}
			if model != "" {
				invokeOpts = append(invokeOpts, agentgraph.WithConfigurable(map[string]any{"model_name": model}))
			}
			if threadID != "" {
				invokeOpts = append(invokeOpts, agentgraph.WithThread(threadID))
			}

			out, err := graphs[0].Invoke(cmd.Context(), in, invokeOpts...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", `{"messages":"hello"}`, "JSON input state")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model provider, anthropic or openai (default from config)")
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "thread to continue")
	cmd.Flags().IntVar(&recursion, "recursion-limit", 0, "maximum node executions (default from config)")
	return cmd
}
