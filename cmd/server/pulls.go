package main

import (
	"fmt"
	"io"

	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/parser"
	"github.com/datalog-plotter/backend/internal/pulls"
	"github.com/spf13/cobra"
)

var pullsFlags struct {
	throttle   float64
	timeFilter float64
}

var pullsCmd = &cobra.Command{
	Use:   "pulls <datalog.csv>",
	Short: "List the pulls found in one datalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		th := appConfig.Segmentation.Defaults
		if cmd.Flags().Changed("throttle") {
			th.MinThrottle = pullsFlags.throttle
		}
		if cmd.Flags().Changed("time-filter") {
			th.TimeFilter = pullsFlags.timeFilter
		}

		clamped := pulls.Clamp(th, appConfig.Segmentation.Bounds)
		if clamped != th {
			logger.Get(cmd.Context()).Warnf("[Pulls] Thresholds %+v clamped to %+v", th, clamped)
		}

		p, err := parser.GetGlobalRegistry().FindParser(args[0])
		if err != nil {
			return err
		}
		log, err := p.Parse(args[0])
		if err != nil {
			return err
		}

		set, err := pulls.Analyze(log, clamped)
		if err != nil {
			return err
		}
		printPulls(cmd.OutOrStdout(), log, set)
		return nil
	},
}

func init() {
	defaults := pulls.DefaultThresholds()
	pullsCmd.Flags().Float64VarP(&pullsFlags.throttle, "throttle", "t", defaults.MinThrottle, "Minimum Throttle Pos (%) for a row to be in a pull")
	pullsCmd.Flags().Float64VarP(&pullsFlags.timeFilter, "time-filter", "f", defaults.TimeFilter, "Pulls must last longer than this many seconds")
}

func printPulls(w io.Writer, log *models.Datalog, set *models.PullSet) {
	if log.Info != "" {
		fmt.Fprintln(w, log.Info)
	}
	fmt.Fprintf(w, "%d rows, %d channels, throttle >= %g, time filter %g sec\n",
		log.Len(), len(log.Channels), set.Thresholds.MinThrottle, set.Thresholds.TimeFilter)

	if set.Empty() {
		fmt.Fprintln(w, pulls.NoPullsMessage)
		fmt.Fprintln(w, pulls.NoPullsHint)
		return
	}

	for _, p := range set.Pulls {
		s := set.Summary[p.Number]
		fmt.Fprintf(w, "%-8s %-18s %-22s rows %d-%d\n",
			models.PullLabel(p.Number), s.StartText(), s.DurationText(), p.StartRow, p.EndRow)
	}
}
