// Command sweeper runs the timer-driven sweeps outside the HTTP service,
// for cron jobs and container schedulers.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
