package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hfjohn123/Anthuria-sub001/internal/citation"
)

func annotateCommand(opts *options) *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "annotate [payload.json]",
		Short: "Splice numbered citation markers into an answer",
		Long: "Reads {message, citations} (or a knowledge-base retrieve-and-generate response)\n" +
			"from a file or stdin and prints the answer with markers and the reference list.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := citation.ParseStyle(style)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			payload, err := citation.DecodePayload(data)
			if err != nil {
				return err
			}
			res := citation.Annotate(payload.Message, payload.Citations)

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(out, map[string]interface{}{
					"rendered":    citation.Render(res, st),
					"spans":       res.Spans,
					"references":  res.References(),
					"passthrough": res.Passthrough(),
					"clamped":     res.Clamped,
				})
			}

			fmt.Fprintln(out, citation.Render(res, st))
			refs := res.References()
			if len(refs) > 0 {
				fmt.Fprintln(out)
			}
			for _, r := range refs {
				loc := r.Reference.Locator
				if loc == "" {
					loc = r.Reference.DocumentID
				}
				fmt.Fprintf(out, "[%d] %s\n", r.Number, loc)
			}
			if res.Clamped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d citation offsets were clamped\n", res.Clamped)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&style, "style", "plain", "marker style: plain, markdown or html")
	return cmd
}
