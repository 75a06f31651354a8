// Command agentmaild runs the agent mail server: JSON-RPC and REST
// transports over a shared SQLite + Git-archive backing store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentmaild:", err)
		os.Exit(1)
	}
}
