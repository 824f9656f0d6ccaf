// Command velto serves static directories with optional live reload.
package main

import (
	"os"

	"github.com/conneroisu/velto/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
