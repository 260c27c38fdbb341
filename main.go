// ser2tcp bridges a serial device to a TCP port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ser2tcp/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ser2tcp: %v\n", err)
		os.Exit(1)
	}
}
