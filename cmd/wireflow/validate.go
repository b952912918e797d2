package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/validation"
)

func validateCmd(a *app) *cobra.Command {
	var hostSchema string
	cmd := &cobra.Command{
		Use:   "validate <items.json>",
		Short: "Check an item batch for structural, semantic and cycle errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			v, err := validation.NewItemValidator()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if hostSchema != "" {
				schemaBytes, err := readInput(cmd, hostSchema)
				if err != nil {
					return err
				}
				if err := v.ValidateWith(raw, schemaBytes); err != nil {
					fmt.Fprintf(out, "%s host schema %s\n", statusIcon(false), hostSchema)
					return err
				}
				fmt.Fprintf(out, "%s host schema %s\n", statusIcon(true), hostSchema)
			}

			result, items := v.ValidateJSON(raw)
			printIssues(out, result)
			if !result.Valid() {
				return fmt.Errorf("%d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
			}
			a.logger.Debug("batch validated", "items", len(items))
			fmt.Fprintf(out, "%s %d items, %d warning(s)\n", statusIcon(true), len(items), len(result.Warnings))
			return nil
		},
	}
	cmd.Flags().StringVar(&hostSchema, "schema", "", "also check the batch against a host JSON Schema")
	return cmd
}
