// Command esvm runs, inspects and produces program images.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

func main() {
	gs := newGlobalState(afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := newRootCommand(gs).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "esvm:", err)
		os.Exit(1)
	}
}
