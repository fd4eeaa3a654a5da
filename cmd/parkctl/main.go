package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/parkd/internal/client"
	"github.com/danmuck/parkd/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "parkctl: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	discovery string
	addr      string
	timeout   time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "parkctl",
		Short:         "Reserve parking spaces from a parkd coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.discovery, "discovery", client.DefaultDiscoverConfig().Addr, "discovery UDP address")
	flags.StringVar(&opts.addr, "addr", "", "coordinator session address (skips discovery)")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Second, "overall command timeout")

	cmd.AddCommand(
		newDiscoverCommand(opts),
		newLotsCommand(opts),
		newReserveCommand(opts),
		newQuoteCommand(opts),
		newReleaseCommand(opts),
	)
	return cmd
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// resolve returns the session address, discovering it unless --addr is set.
func (o *globalOptions) resolve(ctx context.Context) (string, error) {
	if addr := strings.TrimSpace(o.addr); addr != "" {
		return addr, nil
	}
	cfg := client.DefaultDiscoverConfig()
	cfg.Addr = strings.TrimSpace(o.discovery)
	info, err := client.Discover(ctx, cfg)
	if err != nil {
		return "", err
	}
	return info.Addr(), nil
}

func (o *globalOptions) connect(ctx context.Context) (*client.Conn, error) {
	addr, err := o.resolve(ctx)
	if err != nil {
		return nil, err
	}
	cfg := client.DefaultConfig()
	cfg.Address = addr
	return client.Dial(ctx, cfg)
}
