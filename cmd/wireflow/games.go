package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/validation"
)

func importCmd(a *app) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "import <items.json>",
		Short: "Validate an item batch and store it as a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if gameID == "" {
				return fmt.Errorf("--game is required")
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			v, err := validation.NewItemValidator()
			if err != nil {
				return err
			}
			result, items := v.ValidateJSON(raw)
			printIssues(cmd.ErrOrStderr(), result)
			if !result.Valid() {
				return result.ToError()
			}

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.ReplaceItems(ctx, gameID, items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d items stored\n", statusIcon(true), brand.Sprint(gameID), len(items))
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id to store the batch under")
	return cmd
}

func gamesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List the stored games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			games, err := s.ListGames(ctx)
			if err != nil {
				return err
			}
			if len(games) == 0 {
				subtle.Fprintln(cmd.OutOrStdout(), "no games stored")
				return nil
			}
			rows := make([][]string, 0, len(games))
			for _, g := range games {
				rows = append(rows, []string{g.GameID, strconv.Itoa(g.Items), g.UpdatedAt.Format(time.RFC3339)})
			}
			printTable(cmd.OutOrStdout(), []string{"GAME", "ITEMS", "UPDATED"}, rows)
			return nil
		},
	}
}
