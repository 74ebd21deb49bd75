// Command trainload normalizes downloaded workouts and maintains the athlete's
// daily training load.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasjlepore/trainload/config"
)

var rootCmd = &cobra.Command{
	Use:           "trainload",
	Short:         "trainload turns workout downloads into training-load analytics",
	Long:          "trainload normalizes TCX, GPX, FIT and swim CSV downloads into processed workouts, computes TSS and zone time, and tracks CTL/ATL/TSB per athlete.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(processCmd, pmcCmd, zonesCmd, dumpFITCmd)
}
