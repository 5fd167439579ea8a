package cmd

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot/internal/llmclient"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the computer_use tool definition offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := llmclient.ToolParameters()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{
				"name":        llmclient.ToolName,
				"description": llmclient.ToolDescription,
				"parameters":  params,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
