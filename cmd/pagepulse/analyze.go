package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pagepulse/pagepulse/internal/engine"
	"github.com/pagepulse/pagepulse/internal/report"
)

var (
	flagDevice      string
	flagNetwork     string
	flagAuthFile    string
	flagScreenshot  bool
	flagOut         string
	flagConcurrency int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [url...]",
	Short: "Analyze one or more pages and print JSON reports",
	Long: `Runs the full measurement pipeline against each URL and writes the
resulting reports as JSON.

Example:
  pagepulse analyze https://example.com --device mobile --network 3g
  pagepulse analyze https://a.example https://b.example --out reports.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagDevice, "device", "", "device profile (desktop, mobile)")
	analyzeCmd.Flags().StringVar(&flagNetwork, "network", "", "network tier (wifi, 4g, 3g)")
	analyzeCmd.Flags().StringVar(&flagAuthFile, "auth-file", "", "JSON file with session material (cookies, storage, headers, or login flow)")
	analyzeCmd.Flags().BoolVar(&flagScreenshot, "screenshot", false, "capture a viewport screenshot into the report")
	analyzeCmd.Flags().StringVar(&flagOut, "out", "", "write reports to this file instead of stdout")
	analyzeCmd.Flags().IntVar(&flagConcurrency, "concurrency", 2, "maximum analyses in flight")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var auth any
	if flagAuthFile != "" {
		data, err := os.ReadFile(flagAuthFile)
		if err != nil {
			return fmt.Errorf("read auth file: %w", err)
		}
		auth = json.RawMessage(data)
	}

	device := flagDevice
	if device == "" {
		device = cfg.Analysis.DefaultDevice
	}
	network := flagNetwork
	if network == "" {
		network = cfg.Analysis.DefaultNetwork
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(cfg.EngineConfig(), logger)

	reports := make([]*report.AnalysisReport, len(args))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(flagConcurrency)
	for i, target := range args {
		g.Go(func() error {
			rep, err := eng.Analyze(ctx, engine.Request{
				URL:         target,
				DeviceType:  device,
				NetworkTier: network,
				Auth:        auth,
				Screenshot:  flagScreenshot,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", target, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := os.Stdout
	if flagOut != "" {
		f, err := os.Create(flagOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if len(reports) == 1 {
		return enc.Encode(reports[0])
	}
	return enc.Encode(reports)
}
