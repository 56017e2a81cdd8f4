// Package main provides the agentgraph CLI: one-shot invocations, the HTTP
// server and graph visualization.
package main

import (
	"os"
)

// Version information set during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
