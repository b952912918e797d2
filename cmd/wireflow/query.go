package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/expressions"
)

func queryCmd(a *app) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "query <jq expression> [items.json]",
		Short: "Run a jq expression over {\"items\": [...]}",
		Example: `  wireflow query '.items[] | select(.dependsOn == null) | .id' game.json
  wireflow query --game museum '[.items[].type] | unique'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.items(cmd, firstArg(args[1:]), gameID)
			if err != nil {
				return err
			}
			results, err := expressions.NewGoJQEngine().QueryItems(cmd.Context(), args[0], items)
			if err != nil {
				return err
			}
			for _, r := range results {
				if err := writeJSON(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "query a stored game instead of a file")
	return cmd
}
