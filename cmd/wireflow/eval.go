package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/expressions"
)

func evalCmd(a *app) *cobra.Command {
	var (
		gameID    string
		statePath string
		engine    string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "eval [items.json]",
		Short: "Preview which item conditions a game state satisfies",
		Long: "Preview the conditions of an item batch against a game state file:\n" +
			`{"actions": {"<item>:<action>": <first emission ms>}, "now": <ms>}`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.items(cmd, firstArg(args), gameID)
			if err != nil {
				return err
			}
			var state expressions.GameState
			if statePath != "" {
				raw, err := readInput(cmd, statePath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &state); err != nil {
					return fmt.Errorf("decode state: %w", err)
				}
			}

			ev, err := expressions.NewEvaluatorFor(engine)
			if err != nil {
				return err
			}
			previews, err := ev.EvaluateItems(cmd.Context(), items, a.selector, state)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), previews)
			}

			ids := make([]int64, 0, len(previews))
			for id := range previews {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				p := previews[id]
				at := "never"
				if p.At < expressions.Never {
					at = strconv.FormatInt(p.At, 10)
				}
				rows = append(rows, []string{strconv.FormatInt(id, 10), statusIcon(p.Satisfied), at, p.Expression})
			}
			printTable(cmd.OutOrStdout(), []string{"ITEM", "OK", "AT", "CONDITION"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "preview a stored game instead of a file")
	cmd.Flags().StringVar(&statePath, "state", "", "game state JSON file (default: nothing happened yet)")
	cmd.Flags().StringVar(&engine, "engine", "cel", "expression engine: cel or expr")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the previews as JSON")
	return cmd
}
