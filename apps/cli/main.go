package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/root"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "palmyra-tenancy: %v\n", err)
		os.Exit(1)
	}
}
