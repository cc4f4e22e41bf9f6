package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"xin/internal/cli"
)

func main() {
	// Signal handling for graceful shutdown: the first interrupt
	// cancels the context so a streaming command can write its
	// terminal event; a second one ends the process immediately.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
		<-sigChan
		os.Exit(130)
	}()

	os.Exit(cli.NewApp().Execute(ctx, os.Args[1:]))
}
