// Command newart generates trait-based image collections with matching
// metadata, either as an HTTP service or as one-shot local commands.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
