package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/internal/cli"
	"github.com/jkdp/printshop-migrate/internal/verify"
)

// osExit is a variable to allow mocking os.Exit in tests
var osExit = os.Exit

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, verify.ErrCheckFailed):
		return 2
	default:
		return 1
	}
}

func run(ctx context.Context, args []string) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.Execute(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

func main() {
	osExit(run(context.Background(), os.Args[1:]))
}
