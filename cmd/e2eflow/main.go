// Command e2eflow runs end-to-end suites that span several applications.
//
// Usage:
//
//	e2eflow run -c e2eflow.yaml [suite...]
//	e2eflow validate -c e2eflow.yaml
//	e2eflow report -c e2eflow.yaml [run-id]
//	e2eflow serve -c e2eflow.yaml --schedule "smoke:*/15 * * * *"
//	e2eflow version
//
// Every flag can also be set through an E2EFLOW_ prefixed environment variable, for
// example E2EFLOW_CONFIG or E2EFLOW_LOG_LEVEL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newCLI(os.Stdout).rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
