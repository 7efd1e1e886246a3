// Command docdesk is a terminal client for the document management service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/docdesk/internal/cli"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.Options{Build: cli.BuildInfo{Version: version, BuildDate: buildDate}})
	stop()
	os.Exit(code)
}
