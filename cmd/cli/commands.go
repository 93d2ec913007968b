package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/archive"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/logger"
	"github.com/dvloznov/statement-consolidator/internal/pipeline"
)

// extractAll runs every document found in paths through the processor.
// Failures are reported per document and do not stop the others.
func (c *cli) extractAll(out io.Writer, paths []string) ([]*jobs.ExtractDocumentJob, error) {
	if err := c.app.EnableExtraction(c.ctx); err != nil {
		return nil, err
	}
	log := logger.FromContext(c.ctx)

	var results []*jobs.ExtractDocumentJob
	failed := 0
	for _, p := range paths {
		res, err := c.app.Intake.AddPath(c.ctx, p)
		if err != nil {
			fmt.Fprintf(out, "SKIP  %s: %v\n", p, err)
			failed++
			continue
		}
		for _, s := range res.Skipped {
			fmt.Fprintf(out, "SKIP  %s: %s\n", s.Name, s.Reason)
		}

		for _, doc := range res.Documents {
			job := pipeline.JobFromDocument(doc)
			job.Status = jobs.JobStatusProcessing
			if err := c.app.Processor.HandleJob(c.ctx, job); err != nil {
				log.Error().Err(err).Str("filename", doc.Name).Msg("Extraction failed")
				job.Status = jobs.JobStatusError
				job.Error = apperror.UserMessage(err)
				fmt.Fprintf(out, "FAIL  %s: %s\n", doc.Name, job.Error)
				failed++
				if errors.Is(err, apperror.ErrCredentialRevoked) {
					return results, err
				}
				continue
			}
			job.Status = jobs.JobStatusDone
			results = append(results, job)
		}
	}
	if len(results) == 0 && failed > 0 {
		return nil, fmt.Errorf("no documents extracted")
	}
	return results, nil
}

func newExtractCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract FILE...",
		Short: "Extract transactions from statement files (PDF, image, ZIP or gs:// URI)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			results, err := c.extractAll(out, args)
			if err != nil {
				return err
			}

			if asJSON {
				batches := make([]interface{}, 0, len(results))
				for _, job := range results {
					batches = append(batches, map[string]interface{}{
						"filename":          job.Filename,
						"batch":             job.Batch,
						"suggested_account": job.SuggestedAccount,
					})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(batches)
			}

			for _, job := range results {
				b := job.Batch
				fmt.Fprintf(out, "\n=== %s ===\n", job.Filename)
				fmt.Fprintf(out, "Account:     %s (%s)\n", b.AccountName, b.AccountType)
				if b.InstitutionName != "" {
					fmt.Fprintf(out, "Institution: %s\n", b.InstitutionName)
				}
				if job.SuggestedAccount != nil {
					fmt.Fprintf(out, "Suggested:   %s\n", job.SuggestedAccount.Title)
				}
				fmt.Fprintf(out, "Transactions (%d):\n", len(b.Transactions))
				for _, tx := range b.Transactions {
					fmt.Fprintf(out, "  %-12s %-40s %10s %10s\n", tx.Date, tx.Description, tx.Credit, tx.Debit)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print batches as JSON")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	var (
		account string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Extract statements and append new transactions to their account sheets",
		Long: `Extracts every file, deduplicates the transactions against the target
account sheet and appends the rows that are not already recorded.
The target is --account when given, otherwise the suggested account.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			results, err := c.extractAll(out, args)
			if err != nil {
				return err
			}

			for _, job := range results {
				if account != "" {
					job.AssignedAccount = account
				}
			}

			if dryRun {
				for _, job := range results {
					if job.AssignedAccount == "" {
						fmt.Fprintf(out, "SKIP  %s: no account assigned\n", job.Filename)
						continue
					}
					report, err := c.app.Importer.Preview(c.ctx, job.AssignedAccount, job.Batch.Transactions)
					if err != nil {
						fmt.Fprintf(out, "FAIL  %s: %s\n", job.Filename, apperror.UserMessage(err))
						continue
					}
					fmt.Fprintf(out, "DRY   %s -> %s: %d new, %d duplicates (%.1f%%)\n",
						job.Filename, report.Account, report.Stats.Unique, report.Stats.Duplicates, report.Stats.DuplicateRate)
				}
				return nil
			}

			outcomes := c.app.Importer.ImportJobs(c.ctx, results)
			failed := 0
			for _, o := range outcomes {
				switch o.Status {
				case pipeline.OutcomeImported:
					fmt.Fprintf(out, "OK    %s -> %s: %d appended, %d duplicates\n", o.Filename, o.Account, o.Appended, o.Duplicates)
				case pipeline.OutcomeSkipped:
					fmt.Fprintf(out, "SKIP  %s: %s\n", o.Filename, o.Error)
				default:
					fmt.Fprintf(out, "FAIL  %s: %s\n", o.Filename, o.Error)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d imports failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "Account sheet title to import into")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be appended without writing")
	return cmd
}

func newAccountsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List or create account sheets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List account sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := c.app.Ledger.ListAccounts(c.ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, "No account sheets.")
				return nil
			}
			for _, a := range accounts {
				fmt.Fprintf(out, "%s\t%s\n", a.Title, a.DisplayName)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create an account sheet with the ledger header row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := c.app.Ledger.CreateAccount(c.ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", account.Title)
			return nil
		},
	})
	return cmd
}

func newArchiveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "archive FILE...",
		Short: "Upload statement files to the configured archive bucket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.Archive == nil {
				return fmt.Errorf("archive.bucket is not configured")
			}
			out := cmd.OutOrStdout()
			for _, p := range args {
				res, err := c.app.Intake.AddPath(c.ctx, p)
				if err != nil {
					return err
				}
				for _, doc := range res.Documents {
					object := archive.ObjectName(time.Now(), doc.ID, doc.Name)
					uri, err := c.app.Archive.Upload(c.ctx, object, doc.Data, doc.MIMEType)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Uploaded %s to %s\n", doc.Name, uri)
				}
			}
			return nil
		},
	}
}
