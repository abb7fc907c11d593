package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newThreadsCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "threads FILE",
		Short: "List the comment threads stored for a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, closeFn, err := opts.openWorkspace()
			if err != nil {
				return err
			}
			defer closeFn()

			id := documentID(args[0])
			items, err := ws.Threads(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("list threads: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			if len(items) == 0 {
				fmt.Fprintf(out, "No threads for %s\n", id)
				return nil
			}
			fmt.Fprintf(out, "%s: %d thread(s)\n", id, len(items))
			for _, t := range items {
				state := "open"
				if t.Resolved {
					state = "resolved"
				}
				fmt.Fprintf(out, "\n  [%d-%d] %q (%s)\n", t.StartOffset, t.EndOffset, t.HighlightedText, state)
				for _, c := range t.Comments {
					fmt.Fprintf(out, "    %s: %s\n", c.Author, strings.TrimSpace(c.Text))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print threads as JSON")
	return cmd
}
