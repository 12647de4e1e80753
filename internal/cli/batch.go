package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/infrastructure/worker"
	"github.com/garyjia/claim-intake/internal/report"
)

type batchOptions struct {
	concurrency int
	rate        float64
	reportPath  string
	recursive   bool
	category    string
	timeout     time.Duration
}

func newBatchCommand(root *rootOptions) *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Process every document in a directory in parallel",
		Long: `Batch processes the PDFs, images and text files in a directory with a
bounded worker pool and writes an Excel report with one row per document
and a summary sheet.

Subdirectories named after a category (police_report, repair_estimate, ...)
set the category of the documents inside them when --recursive is given.

Example:
  claimctl batch ./inbox
  claimctl batch ./inbox --recursive --concurrency 8 --report out.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "parallel runs (default: worker.concurrency)")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "maximum runs started per second, 0 for unlimited")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "report file (default: <storage.report_dir>/batch-<time>.xlsx)")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().StringVar(&opts.category, "category", "", "category for every document")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "total time allowed for the batch")

	return cmd
}

func runBatch(cmd *cobra.Command, root *rootOptions, opts *batchOptions, dir string) error {
	files, err := collectFiles(dir, opts.recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported documents in %s", dir)
	}

	docs := make([]*entity.ClaimDocument, 0, len(files))
	for _, path := range files {
		doc, err := loadDocument(path, categoryFor(path, opts.category))
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	c, cfg, err := root.startContainer(ctx)
	if err != nil {
		return err
	}
	defer closeContainer(c)

	concurrency := opts.concurrency
	if concurrency <= 0 {
		concurrency = cfg.Worker.Concurrency
	}
	reportPath := opts.reportPath
	if reportPath == "" {
		reportPath = filepath.Join(cfg.Storage.ReportDir, "batch-"+time.Now().Format("20060102-150405")+".xlsx")
	}

	pool := worker.NewPool(c.Orchestrator(), worker.PoolConfig{
		Concurrency:   concurrency,
		RatePerSecond: opts.rate,
	}, c.Logger().Named("batch"))

	outcomes := pool.Run(ctx, docs)

	if err := report.WriteFile(reportPath, outcomes); err != nil {
		return err
	}
	c.Logger().Info("Batch report written", zap.String("path", reportPath))

	out := cmd.OutOrStdout()
	if err := writeTable(out, outcomes); err != nil {
		return err
	}
	fmt.Fprintln(out)
	writeSummary(out, report.Summarize(outcomes), len(docs))
	fmt.Fprintf(out, "Report: %s\n", reportPath)

	if skipped := countNil(outcomes); skipped > 0 {
		return fmt.Errorf("%d of %d documents were not processed: %w", skipped, len(docs), ctx.Err())
	}
	return nil
}

func writeSummary(w io.Writer, counts map[string]int, total int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-22s %d\n", k, counts[k])
	}
	fmt.Fprintf(w, "%-22s %d\n", "TOTAL", total)
}

func countNil(outcomes []*entity.ClaimOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o == nil {
			n++
		}
	}
	return n
}
