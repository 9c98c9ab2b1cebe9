// Command itddctl runs resolution operations against the configured database
// without the HTTP server: batch ingestion from files, reconciliation passes,
// scope exports and record inspection.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultCLI()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
