package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garyjia/claim-intake/internal/domain/entity"
)

type processOptions struct {
	category string
	asJSON   bool
}

func newProcessCommand(root *rootOptions) *cobra.Command {
	opts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process <file>...",
		Short: "Process claim documents one after another",
		Long: `Process runs each document through the pipeline and prints its outcome.
Outcomes are recorded in the audit log like HTTP submissions.

Example:
  claimctl process accident.pdf
  claimctl process --category police_report report.png --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "", "document category (default: parent directory name, else other)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print full outcomes as JSON")

	return cmd
}

func runProcess(cmd *cobra.Command, root *rootOptions, opts *processOptions, files []string) error {
	ctx := cmd.Context()

	docs := make([]*entity.ClaimDocument, 0, len(files))
	for _, path := range files {
		doc, err := loadDocument(path, categoryFor(path, opts.category))
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	c, _, err := root.startContainer(ctx)
	if err != nil {
		return err
	}
	defer closeContainer(c)

	outcomes := make([]*entity.ClaimOutcome, 0, len(docs))
	for _, doc := range docs {
		outcomes = append(outcomes, c.Claims().Submit(ctx, doc))
	}

	if opts.asJSON {
		return writeJSON(cmd.OutOrStdout(), outcomes)
	}
	return writeTable(cmd.OutOrStdout(), outcomes)
}

func writeJSON(w io.Writer, outcomes []*entity.ClaimOutcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(outcomes)
}

// writeTable prints one line per outcome; nil outcomes were never started
func writeTable(w io.Writer, outcomes []*entity.ClaimOutcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tRUN\tRESULT\tDETAIL")
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		file := ""
		if o.Document != nil {
			file = o.Document.Filename
		}
		result, detail := o.State, ""
		switch {
		case o.Failure != nil:
			result, detail = o.Failure.String(), o.Failure.Detail
		case o.Decision != nil:
			result, detail = string(o.Decision.Action), o.Decision.Rationale
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", file, o.RunID, result, detail)
	}
	return tw.Flush()
}
