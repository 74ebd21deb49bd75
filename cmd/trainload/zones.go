package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasjlepore/trainload"
)

var zonesCmd = &cobra.Command{
	Use:   "zones <processed.json>",
	Short: "Summarize a processed workout and its time in zones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var w trainload.ProcessedWorkout
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), trainload.BuildWorkoutSummary(&w))
		return nil
	},
}
