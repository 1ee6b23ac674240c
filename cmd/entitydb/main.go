// Command entitydb runs maintenance tasks against an entitydb directory.
//
// Usage:
//
//	entitydb info    [--dir DIR] [--json]
//	entitydb repair  [--dir DIR] [--full]
//	entitydb backup  [--dir DIR] --out FILE [--to-dir]
//	entitydb restore --from FILE --dir DIR
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set via ldflags during build)
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
