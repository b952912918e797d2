package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/store"
	"github.com/rendis/wireflow/pkg/schema"
)

func historyCmd(a *app) *cobra.Command {
	var (
		gameID string
		since  int64
		types  []string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the recorded editor events of a game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if gameID == "" {
				return fmt.Errorf("--game is required")
			}
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.GetEvents(ctx, store.EventFilter{GameID: gameID, Types: types, Since: since, Limit: limit})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					strconv.FormatInt(ev.Sequence, 10),
					ev.Timestamp.Format(time.RFC3339),
					ev.Type,
					ev.ItemID,
					detail(ev),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"SEQ", "TIME", "EVENT", "ITEM", "DETAIL"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().Int64Var(&since, "since", 0, "only events after this sequence")
	cmd.Flags().StringSliceVar(&types, "type", nil, "only events of these types")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the events as JSON")
	return cmd
}

func detail(ev *store.Event) string {
	p := ev.Payload
	switch ev.Type {
	case schema.EventCoordinatesChanged:
		return fmt.Sprintf("(%g, %g)", p.X, p.Y)
	case schema.EventNodeClicked:
		if p.MultiSelect {
			return "multi"
		}
		return ""
	}
	return p.Action
}
