// Command portalctl runs operator tasks against the portal database:
// schema migrations and doctor rating reconciliation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(openEnv).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
