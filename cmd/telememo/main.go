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
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errorKind(err), err)
	stop()
	os.Exit(exitCode(err))
}
