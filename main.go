// caseta - a command-line client for the Lutron Caseta / RA2 Select
// Telnet integration interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"caseta/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "caseta: %v\n", err)
		os.Exit(1)
	}
}
