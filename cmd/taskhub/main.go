package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "taskhub",
		Short:        "taskhub is a multi-tenant task and note API",
		Long:         "taskhub serves the task, note and time entry REST API with organization based access control.\nAll settings are read from TASKHUB_* environment variables.",
		SilenceUsage: true,
		Version:      version,
	}
	cmd.AddCommand(serveCmd(), migrateCmd())
	return cmd
}
