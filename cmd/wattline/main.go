// Command wattline is the statusline entry point. The default command
// reads one usage payload from stdin, folds it into the shared daily
// store, and prints a single status line to stdout. Diagnostics go to
// stderr only; the invocation never exits non-zero in statusline mode
// because a failed update must not break the caller's status bar.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/wattline/wattline/pkg/config"
	"github.com/wattline/wattline/pkg/debuglog"
	"github.com/wattline/wattline/pkg/energy"
	"github.com/wattline/wattline/pkg/history"
	"github.com/wattline/wattline/pkg/lockstore"
	"github.com/wattline/wattline/pkg/logutil"
	"github.com/wattline/wattline/pkg/meter"
	"github.com/wattline/wattline/pkg/payload"
	"github.com/wattline/wattline/pkg/quota"
	"github.com/wattline/wattline/pkg/render"
	"github.com/wattline/wattline/pkg/version"
)

func main() {
	var logLevel string
	var configPath string

	root := &cobra.Command{
		Use:   "wattline",
		Short: "Token usage and energy-estimate statusline",
		Long:  "Wattline reads one usage payload from stdin, accumulates shared daily/weekly/monthly token totals across sessions, and prints a one-line status summary with order-of-magnitude energy estimates.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runStatus(cmd, configPath)
			return nil
		},
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return logutil.Configure(logLevel)
	}
	root.PersistentFlags().StringVar(&logLevel, "loglevel", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Config TOML path")

	var tailN int
	var fromDate, toDate string
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sealed days, or sum an inclusive date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, configPath, tailN, fromDate, toDate)
		},
	}
	historyCmd.Flags().IntVarP(&tailN, "num", "n", 7, "Number of most recent days to show")
	historyCmd.Flags().StringVar(&fromDate, "from", "", "Range start date (2006-01-02)")
	historyCmd.Flags().StringVar(&toDate, "to", "", "Range end date (2006-01-02)")
	root.AddCommand(historyCmd)

	var exportOut string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a zstd-compressed snapshot of the history ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, configPath, exportOut)
		},
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Snapshot path (default: ledger path + .zst)")
	root.AddCommand(exportCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})

	if err := root.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// runStatus is the whole per-invocation cycle. Every failure path
// degrades: the one-line output is always produced.
func runStatus(cmd *cobra.Command, configPath string) {
	now := time.Now()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warn("config unusable, using defaults", "error", err)
	}

	p, raw, err := payload.Decode(cmd.InOrStdin())
	if err != nil {
		log.Warn("payload unusable, counting zero contribution", "error", err)
	}
	if debuglog.Enabled() {
		debuglog.Capture(cfg.DebugLogPath(), raw, now)
	}

	ledger := history.New(cfg.HistoryPath())
	recorder := meter.NewRecorder(cfg.StorePath(), cfg.LockTimeout(), ledger)
	obs := meter.Observation{
		SessionID:  p.SessionID,
		FreshTotal: p.ContextWindow.TotalInputTokens,
		OutTotal:   p.ContextWindow.TotalOutputTokens,
		CacheRead:  p.CacheRead(),
		CacheWrite: p.CacheWrite(),
	}

	state, err := recorder.Record(obs, now)
	if err != nil {
		if errors.Is(err, lockstore.ErrLockTimeout) {
			log.Warn("store lock busy, skipping persistence this cycle")
		} else {
			log.Warn("store update failed, rendering last committed totals", "error", err)
		}
		state = recorder.Snapshot(now)
	}

	var q quota.Entry
	var quotaOK bool
	if cfg.Quota.Enabled {
		fetcher := &quota.HTTPFetcher{
			Endpoint:     cfg.Quota.Endpoint,
			BetaHeader:   cfg.Quota.BetaHeader,
			Timeout:      cfg.QuotaTimeout(),
			TokenCommand: cfg.Quota.TokenCommand,
		}
		q, quotaOK = quota.NewCache(cfg.QuotaCachePath(), cfg.QuotaTTL(), fetcher).Get(cmd.Context(), now)
	}

	periods, err := render.PeriodTotals(ledger, now, state.Daily.TokenCounts)
	if err != nil {
		log.Warn("history roll-up failed", "error", err)
		periods = render.Periods{Week: state.Daily.TokenCounts, Month: state.Daily.TokenCounts}
	}

	line := render.Compose(p.Model.DisplayName, p.ContextWindow.UsedPercentage,
		q, quotaOK, state.Daily.TokenCounts, periods, cfg.EnergyConstants())
	fmt.Fprint(cmd.OutOrStdout(), line)
}

func runHistory(cmd *cobra.Command, configPath string, tailN int, fromDate, toDate string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ledger := history.New(cfg.HistoryPath())
	consts := cfg.EnergyConstants()

	if fromDate != "" || toDate != "" {
		if fromDate == "" || toDate == "" {
			return fmt.Errorf("--from and --to must be given together")
		}
		tot, err := ledger.SumRange(fromDate, toDate)
		if err != nil {
			return err
		}
		mwh := consts.EstimateMilliwattHours(tot.Input, tot.Output, tot.CacheRead, tot.CacheWrite)
		fmt.Fprintf(cmd.OutOrStdout(), "%s..%s  days:%d  in:%s out:%s cr:%s cw:%s  %s\n",
			fromDate, toDate, tot.Days,
			energy.FormatTokens(tot.Input), energy.FormatTokens(tot.Output),
			energy.FormatTokens(tot.CacheRead), energy.FormatTokens(tot.CacheWrite),
			energy.FormatEnergy(mwh))
		return nil
	}

	entries, err := ledger.Tail(tailN)
	if err != nil {
		return err
	}
	for _, e := range entries {
		mwh := consts.EstimateMilliwattHours(e.Input, e.Output, e.CacheRead, e.CacheWrite)
		fmt.Fprintf(cmd.OutOrStdout(), "%s  in:%s out:%s cr:%s cw:%s  sessions:%d  %s\n",
			e.Date,
			energy.FormatTokens(e.Input), energy.FormatTokens(e.Output),
			energy.FormatTokens(e.CacheRead), energy.FormatTokens(e.CacheWrite),
			e.Sessions, energy.FormatEnergy(mwh))
	}
	return nil
}

func runExport(cmd *cobra.Command, configPath, out string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ledger := history.New(cfg.HistoryPath())
	if out == "" {
		out = cfg.HistoryPath() + ".zst"
	}
	if err := ledger.ExportSnapshot(out); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
