package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

// options shared by every subcommand
type options struct {
	tablesFile string
	output     string
}

// Root builds the pdpmctl command tree
func Root() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pdpmctl",
		Short:         "Annotate cited answers and aggregate PDPM scores",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.output {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("--output must be text or json, got %q", opts.output)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.tablesFile, "tables", "", "category table override file merged over the built-in tables")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		annotateCommand(opts),
		aggregateCommand(opts),
		tablesCommand(opts),
		tokenCommand(opts),
	)
	return root
}

func (o *options) registry() (*pdpm.Registry, error) {
	if o.tablesFile == "" {
		return pdpm.DefaultRegistry(), nil
	}
	return pdpm.LoadFile(o.tablesFile)
}

// readInput reads a file argument, or stdin when the argument is absent or "-"
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
