package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/pipeline"
)

var (
	processAsOf string
	processJSON bool
)

var processCmd = &cobra.Command{
	Use:   "process [dir]",
	Short: "Process every downloaded workout in a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer e.close()

		dataDir := e.cfg.DataDir
		if len(args) == 1 {
			dataDir = args[0]
		}
		if dataDir == "" {
			return errors.New("a data directory is required (argument or --data-dir)")
		}

		var asOf time.Time
		if processAsOf != "" {
			if asOf, err = parseDate("as-of", processAsOf); err != nil {
				return err
			}
		}
		prof, err := loadProfile(e.cfg.ProfilePath, e.logger)
		if err != nil {
			return err
		}

		result, err := pipeline.Run(cmd.Context(), pipeline.Options{
			DataDir:        dataDir,
			OutDir:         e.cfg.Output.Dir,
			Profile:        prof,
			AsOf:           asOf,
			PauseThreshold: e.cfg.PauseThreshold,
			Format:         e.cfg.Output.Format,
			Overwrite:      e.cfg.Output.Overwrite,
			Workers:        e.cfg.Workers,
			Store:          e.store,
			Publisher:      e.publisher,
			Logger:         e.logger,
		})
		if err != nil {
			return fmt.Errorf("process %s: %w", dataDir, err)
		}

		out := cmd.OutOrStdout()
		if processJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Fprintf(out, "run %s\n", result.RunID)
		fmt.Fprintf(out, "output dir:  %s\n", result.OutputDir)
		for _, w := range result.Workouts {
			tss := "n/a"
			if w.TSS != nil {
				tss = fmt.Sprintf("%.1f", *w.TSS)
			}
			fmt.Fprintf(out, "- %-24s %-6s tss %-6s %s\n", w.ActivityID, w.Sport, tss, w.ProcessedPath)
			for _, warn := range w.Warnings {
				fmt.Fprintf(out, "    warning: %s\n", warn)
			}
		}
		for _, f := range result.Failures {
			fmt.Fprintf(out, "! %-24s %s: %s\n", f.ActivityID, f.Stage, f.Error)
		}
		fmt.Fprintf(out, "processed %d, failed %d\n", len(result.Workouts), len(result.Failures))
		if len(result.DailyLoads) > 0 {
			fmt.Fprintln(out)
			fmt.Fprint(out, trainload.BuildDailyLoadTable(result.DailyLoads))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processAsOf, "as-of", "", "Use the profile version active on this date (YYYY-MM-DD) for every workout")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "Print the run result as JSON")
}
