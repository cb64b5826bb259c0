package main

import (
	"context"
	"os/signal"
	"syscall"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo.

	"tagsync/cmd/tagsync/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	commands.ExecuteContext(ctx)
}
