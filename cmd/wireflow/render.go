package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/wireflow/internal/render"
)

func renderCmd(a *app) *cobra.Command {
	var (
		gameID string
		format string
		output string
		title  string
	)
	cmd := &cobra.Command{
		Use:   "render [items.json]",
		Short: "Draw the dependency diagram of an item batch",
		Long: "Draw the dependency diagram of an item batch read from a file (\"-\" for stdin)\n" +
			"or of a stored game. Formats: ascii, mermaid, svg, png.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.items(cmd, firstArg(args), gameID)
			if err != nil {
				return err
			}
			name := gameID
			if name == "" {
				name = "local"
			}
			if title == "" {
				title = name
			}

			m := a.manager(cmd.Context(), name, items)
			defer m.Close()
			model := render.Build(m.Diagram(), title)

			var out []byte
			switch format {
			case "ascii":
				out = []byte(render.RenderASCII(model))
			case "mermaid":
				out = []byte(render.RenderMermaid(model))
			case "svg":
				out = []byte(render.RenderSVG(model))
			case "png":
				out, err = render.RenderImage(cmd.Context(), model)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("format must be ascii, mermaid, svg or png, got %q", format)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s written (%d nodes, %d edges)\n",
				statusIcon(true), output, len(model.Nodes), len(model.Edges))
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "render a stored game instead of a file")
	cmd.Flags().StringVarP(&format, "format", "f", "ascii", "output format: ascii, mermaid, svg, png")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVar(&title, "title", "", "diagram title (default: game id)")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
