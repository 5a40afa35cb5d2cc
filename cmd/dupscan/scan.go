package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/dupscan/routing"
	"github.com/halcyonlabs/dupscan/scan"
	"github.com/halcyonlabs/dupscan/telemetry"
)

func newScanCmd() *cobra.Command {
	var (
		deadline   time.Duration
		outputPath string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "Scan a directory tree for duplicate code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.Init(telemetry.Config{})
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			ctx := cmd.Context()
			if deadline > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, deadline)
				defer cancel()
			}

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("open output: %w", err)
				}
				defer f.Close()
				out = f
			}
			sink := routing.NewWriterSink(out)
			router := routing.NewRouter(sink, sink)

			comps, err := scan.Build(ctx, cfg, root, router)
			if err != nil {
				return err
			}
			defer comps.Close()

			files, err := scan.DiscoverFiles(root)
			if err != nil {
				return fmt.Errorf("discover files: %w", err)
			}

			report, err := comps.Engine.Scan(ctx, files)
			if err != nil {
				return err
			}

			if reportPath != "" {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
				if err := os.WriteFile(reportPath, data, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}

			fmt.Fprint(os.Stderr, report.Summary())
			return nil
		},
	}

	cmd.Flags().DurationVar(&deadline, "deadline", 0, "overall scan deadline (0 means none)")
	cmd.Flags().StringVar(&outputPath, "output", "", "write routed payloads to this file instead of stdout")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the full JSON report to this file")
	return cmd
}
