package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

func aggregateCommand(opts *options) *cobra.Command {
	var domain, variant string
	cmd := &cobra.Command{
		Use:   "aggregate [entries.json]",
		Short: "Aggregate scored entries into recorded and projected categories",
		Long:  "Reads a JSON array of entries ({item, score, axis, recorded, suggestions}) from a file or stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			tbl, err := reg.Table(pdpm.Domain(domain), variant)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var entries []pdpm.Entry
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("decode entries: %w", err)
			}

			s := pdpm.Aggregate(pdpm.Entries(entries), tbl)
			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(out, s)
			}
			fmt.Fprintf(out, "table:      %s\n", tbl.Key())
			fmt.Fprintf(out, "recorded:   %g -> %s (CMI %.2f)\n", s.RecordedTotal, s.RecordedCategory, s.RecordedCMI)
			fmt.Fprintf(out, "projected:  %g -> %s (CMI %.2f)\n", s.ProjectedTotal, s.ProjectedCategory, s.ProjectedCMI)
			fmt.Fprintf(out, "suggested:  %g from %d active suggestions\n", s.SuggestedTotal, s.ActiveSuggestions)
			if s.Changed() {
				fmt.Fprintln(out, "accepting the suggestions changes the category")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "table domain: nta, slp, nursing, pt, ot")
	cmd.Flags().StringVar(&variant, "variant", "", "table variant (clinical category or nursing group)")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}
