// Package main is the entry point for tradectl, the TradeGuard command-line client.
package main

import (
	"context"
	"os"

	"github.com/aristath/tradeguard/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
