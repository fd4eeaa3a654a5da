package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/parkd/internal/coordinator"
	"github.com/danmuck/parkd/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "parkd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "parkd",
		Short:         "Run the parking capacity coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServiceConfig(strings.TrimSpace(configPath))
			if err != nil {
				return err
			}
			svc, err := coordinator.NewServiceWithConfig(cfg)
			if err != nil {
				return err
			}
			runErr := svc.Run(cmd.Context())
			writeSummary(cmd, svc)
			return runErr
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "parkd.toml", "path to the TOML config file")
	return cmd
}

// writeSummary reports earnings once the dispatcher has stopped. A service
// that never started serving has nothing to report.
func writeSummary(cmd *cobra.Command, svc *coordinator.Service) {
	select {
	case <-svc.Dispatcher().Done():
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := svc.Dispatcher().Stats(ctx)
	if err != nil {
		return
	}
	for _, e := range st.Earnings {
		log.Info().Int("lot", e.LotID).Str("earned", e.Total.String()).Msg("parkd earnings")
	}
	if err := coordinator.WriteSummary(cmd.OutOrStdout(), st.Earnings); err != nil {
		log.Warn().Err(err).Msg("parkd write summary")
	}
}
