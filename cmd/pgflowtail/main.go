// Command pgflowtail connects to a PostgreSQL logical replication slot
// and prints decoded change events as JSON lines to stdout. It is a
// thin CLI shell around the replication package; it holds no core
// protocol logic of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ha1tch/pgflow/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pgflowtail",
		Short:         "Tail a PostgreSQL logical replication slot",
		Long:          "pgflowtail connects over the PostgreSQL logical replication protocol and prints decoded pgoutput change events.",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newTailCmd())
	cmd.AddCommand(newCreateSlotCmd())
	cmd.AddCommand(newDropSlotCmd())
	return cmd
}
