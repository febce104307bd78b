// Package main provides the rtctl CLI for inspecting and exercising a running realtime shell.
package main

import (
	"os"

	"github.com/sirosfoundation/go-realtime-shell/cmd/rtctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
