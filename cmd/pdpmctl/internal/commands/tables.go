package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

func tablesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect and validate category tables",
	}
	cmd.AddCommand(tablesListCommand(opts), tablesValidateCommand(opts))
	return cmd
}

func tablesListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the loaded category tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), reg.Tables())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOMAIN\tVARIANT\tKIND\tCODES")
			for _, t := range reg.Tables() {
				codes := make([]string, 0, len(t.Codes()))
				for _, c := range t.Codes() {
					codes = append(codes, string(c))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Domain, t.Variant, t.Kind, strings.Join(codes, ","))
			}
			return tw.Flush()
		},
	}
}

func tablesValidateCommand(_ *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a category table override file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := pdpm.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d tables after merging over the built-ins\n", args[0], reg.Len())
			return nil
		},
	}
}
