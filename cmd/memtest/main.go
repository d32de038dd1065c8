// Command memtest tests the memory of the host it runs on. It locks an
// arena of RAM, runs the standard test sequence over it on every processor
// and reports failures on a memtest86 style status screen. Once the run
// completes, a BadRAM boot option covering the failing addresses is printed
// and optional YAML and PNG reports are written.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(run).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
