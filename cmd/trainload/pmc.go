package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/pmc"
)

var (
	pmcAthlete string
	pmcDate    string
	pmcFrom    string
	pmcJSON    bool
)

var pmcCmd = &cobra.Command{
	Use:   "pmc",
	Short: "Compute CTL/ATL/TSB for a day or a range of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pmcAthlete == "" {
			return errors.New("--athlete is required")
		}
		to := trainload.Day(time.Now())
		if pmcDate != "" {
			d, err := parseDate("date", pmcDate)
			if err != nil {
				return err
			}
			to = d
		}
		from := to
		if pmcFrom != "" {
			d, err := parseDate("from", pmcFrom)
			if err != nil {
				return err
			}
			from = d
		}

		e, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer e.close()

		engine := pmc.NewEngine(e.store, e.store, pmc.WithLogger(e.logger), pmc.WithPublisher(e.publisher))
		loads, err := engine.Backfill(cmd.Context(), pmcAthlete, from, to)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if pmcJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(loads)
		}
		fmt.Fprint(out, trainload.BuildDailyLoadTable(loads))
		return nil
	},
}

func init() {
	pmcCmd.Flags().StringVar(&pmcAthlete, "athlete", "", "Athlete id")
	pmcCmd.Flags().StringVar(&pmcDate, "date", "", "Day to compute (YYYY-MM-DD, default today)")
	pmcCmd.Flags().StringVar(&pmcFrom, "from", "", "Backfill every day from this date through --date")
	pmcCmd.Flags().BoolVar(&pmcJSON, "json", false, "Print the loads as JSON")
}
