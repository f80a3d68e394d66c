// Command factrag verifies factual claims against a curated evidence base
package main

import (
	"fmt"
	"os"

	"github.com/ppiankov/factrag/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
