// Command ranking-export renders the ranking leaderboard for one offer (or
// all offers) to blob storage and prints the stored artifact keys.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"admitcore/internal/adapters/reports"
	"admitcore/internal/blob"
	"admitcore/internal/core"
	"admitcore/internal/ranking"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ranking-export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		offerID string
		formats string
		timeout time.Duration
	)
	fs.StringVar(&offerID, "offer", "", "offer id to export (empty exports all offers)")
	fs.StringVar(&formats, "formats", "json,csv", "comma separated report formats (json,csv)")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "export wait timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))
	if err := run(offerID, formats, timeout, logger, stdout); err != nil {
		logger.Error("export failed", "err", err)
		return 1
	}
	return 0
}

func run(offerID, formats string, timeout time.Duration, logger *slog.Logger, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ledger, err := core.OpenLedger(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	store, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	var parsed []reports.Format
	for _, part := range strings.Split(formats, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed = append(parsed, reports.Format(part))
	}

	exporter := reports.NewExporter(ranking.NewProjector(ledger), store, nil)
	exporter.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = exporter.Stop(stopCtx)
	}()

	record, err := exporter.EnqueueExport(ctx, reports.ExportInput{
		OfferID:     offerID,
		Formats:     parsed,
		RequestedBy: "ranking-export",
	})
	if err != nil {
		return err
	}
	logger.Info("export queued", "id", record.ID, "offer", offerID)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("export %s timed out", record.ID)
		case <-ticker.C:
		}
		current, ok := exporter.GetExport(record.ID)
		if !ok {
			return fmt.Errorf("export %s vanished", record.ID)
		}
		switch current.Status {
		case reports.ExportStatusSucceeded:
			for _, artifact := range current.Artifacts {
				if _, err := fmt.Fprintf(stdout, "%s\t%s\t%d bytes\n", artifact.Key, artifact.ContentType, artifact.SizeBytes); err != nil {
					return err
				}
			}
			return nil
		case reports.ExportStatusFailed:
			return fmt.Errorf("export failed: %s", current.Error)
		}
	}
}
