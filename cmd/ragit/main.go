// Command ragit is the CLI driver for the knowledge-base engine: a thin
// cobra wrapper that wires the core init/stage/build/query/agent/check/
// recover/archive/clone/push/pull packages into a single binary.
package main

import (
	"os"

	"github.com/ragit-kb/ragit/cmd/ragit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
