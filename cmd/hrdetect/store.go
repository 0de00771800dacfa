package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/claudia-liauw/health-app/internal/ingest"
)

type importOptions struct {
	input       string
	subjectID   string
	allSubjects bool
	after       string
	before      string
}

func newImportCommand(root *rootOptions) *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a CSV export into the reading store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			rng, err := parseRange(opts.after, opts.before)
			if err != nil {
				return err
			}

			opener := ingest.NewOpener(ingest.S3Options{
				Region:       cfg.Ingest.S3.Region,
				Endpoint:     cfg.Ingest.S3.Endpoint,
				UsePathStyle: cfg.Ingest.S3.UsePathStyle,
			})
			rc, err := opener.Open(ctx, opts.input)
			if err != nil {
				return err
			}
			defer rc.Close()

			samples, err := ingest.ReadCSV(rc, ingest.Filter{
				SubjectID:   opts.subjectID,
				AllSubjects: opts.allSubjects,
				Range:       rng,
			})
			if err != nil {
				return err
			}

			store, err := openStore(ctx, logger, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.InsertBatch(ctx, samples)
			if err != nil {
				return err
			}
			logger.Info("readings imported", slog.String("input", opts.input), slog.Int("rows", n))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d readings into %s\n", n, cfg.Store.Driver)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.input, "input", "", "CSV export with Id,Time,Value columns (path or s3:// URL)")
	flags.StringVar(&opts.subjectID, "subject", "", "Only import this subject (defaults to the first subject found)")
	flags.BoolVar(&opts.allSubjects, "all-subjects", false, "Import every subject in the file")
	flags.StringVar(&opts.after, "after", "", "Only import readings at or after this time")
	flags.StringVar(&opts.before, "before", "", "Only import readings before this time")
	_ = cmd.MarkFlagRequired("input")
	cmd.MarkFlagsMutuallyExclusive("subject", "all-subjects")
	return cmd
}

func newSubjectsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "subjects",
		Short: "List subjects with stored readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, logger, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			subjects, err := store.Subjects(ctx)
			if err != nil {
				return err
			}
			for _, id := range subjects {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
