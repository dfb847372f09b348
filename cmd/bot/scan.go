package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/scranton_condor/internal/retry"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Load one chain from the paper venue and print the ranked candidates per expiry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			at, err := cmd.Flags().GetString("at")
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parsing --at: %w", err)
				}
			}

			logger := setupLogger(cfg)
			session, err := cfg.Session()
			if err != nil {
				return err
			}
			_, venue := newVenue(cfg, session, func() time.Time { return now }, logger)
			chains := retry.NewClient(brokerFor(cfg, venue, logger), logger.WithField("component", "retry"))
			chain, err := chains.LoadChain(cmd.Context(), cfg.Strategy.Symbol, now, nil)
			if err != nil {
				return err
			}

			finder := strategy.NewFinder(cfg.FinderConfig(session), logger.WithField("component", "finder"))
			result := finder.FindBest(chain, now)
			printScan(cmd.OutOrStdout(), result)
			if !result.HasResult() {
				fmt.Fprintf(cmd.OutOrStdout(), "No candidate: %v\n", result.Err)
			}
			return nil
		},
	}
	cmd.Flags().String("at", "", "Evaluate as of this RFC3339 time instead of now")
	return cmd
}

// printScan renders one row per evaluated expiry; the overall best is marked with "*".
func printScan(w io.Writer, result *strategy.FinderResult) {
	if result == nil {
		return
	}
	keys := make([]string, 0, len(result.ByExpiry))
	for k := range result.ByExpiry {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "Expiry", "DTE", "IV", "EM", "Evaluated", "Passed", "Strikes", "Credit", "RR", "Score"})
	for _, k := range keys {
		er := result.ByExpiry[k]
		mark := ""
		if k == result.BestExpiry {
			mark = "*"
		}
		row := []string{
			mark,
			k,
			strconv.FormatFloat(er.DTE, 'f', 2, 64),
			strconv.FormatFloat(er.ImpliedVol, 'f', 3, 64),
			strconv.FormatFloat(er.ExpectedMove, 'f', 2, 64),
			strconv.Itoa(er.Score.Evaluated),
			strconv.Itoa(len(er.Score.Candidates)),
			"-", "-", "-", "-",
		}
		if best := er.Score.Best; best != nil {
			s := best.Strikes()
			row[7] = fmt.Sprintf("%g/%g/%g/%g", s[0], s[1], s[2], s[3])
			row[8] = strconv.FormatFloat(best.TotalCredit, 'f', 2, 64)
			row[9] = strconv.FormatFloat(best.RewardRisk, 'f', 3, 64)
			row[10] = strconv.FormatFloat(best.OverallScore, 'f', 3, 64)
		}
		table.Append(row)
	}
	table.Render()
}
