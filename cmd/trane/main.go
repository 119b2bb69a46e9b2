// Command trane runs the spaced-repetition exercise scheduler, either as a
// long-lived HTTP server or as a one-shot CLI against a local library and
// sqlite store.
package main

import (
	"fmt"
	"os"

	"github.com/trane-project/trane/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
