package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/berry-13/vicsam-group-sub002/internal/cli"
	"github.com/berry-13/vicsam-group-sub002/internal/tools/obscheck"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		code := 1
		if errors.Is(err, obscheck.ErrCheckFailed) {
			code = 2
		}
		stop()
		os.Exit(code)
	}
}
