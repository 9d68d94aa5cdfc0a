// Lifeboat - project backup, health assessment and disaster recovery
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcrostarosa/lifeboat/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cli.SetVersion(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
