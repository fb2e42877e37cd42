// Command pdpmctl runs citation annotation and PDPM aggregation locally.
package main

import (
	"os"

	"github.com/hfjohn123/Anthuria-sub001/cmd/pdpmctl/internal/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		os.Exit(1)
	}
}
