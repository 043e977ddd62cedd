package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/application/service"
	"github.com/garyjia/closeflow/internal/container"
	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/domain/entity"
	httpserver "github.com/garyjia/closeflow/internal/interfaces/http"
)

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", withCode(exitUsage, fmt.Errorf("invalid path %q: %w", path, err))
	}
	return abs, nil
}

// ingestStatus maps an ingestion outcome onto the process exit code
func ingestStatus(result *entity.IngestionResult, err error) error {
	switch {
	case apperr.IsKind(err, apperr.KindSchema):
		return withCode(exitFailure, err)
	case errors.Is(err, service.ErrInvalidRequest):
		return withCode(exitUsage, err)
	case err != nil:
		return err
	case !result.Success:
		return withCode(exitFailure, errUnsuccessful)
	}
	return nil
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	var req service.IngestRequest

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Ingest one trial balance extract (CSV or XLSX)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			req.Path = path
			req.Name = filepath.Base(path)

			return withContainer(cmd.Context(), root, func(ctx context.Context, c *container.Container) error {
				result, err := c.Services().Ingestion.Ingest(ctx, req)
				if result != nil {
					if perr := printJSON(cmd, result); perr != nil {
						return perr
					}
				}
				return ingestStatus(result, err)
			})
		},
	}

	cmd.Flags().StringVar(&req.Entity, "entity", "", "Entity code (required)")
	cmd.Flags().StringVar(&req.Period, "period", "", "Period as YYYY-MM (required)")
	cmd.Flags().StringVar(&req.JobID, "job-id", "", "Correlation id for audit events (default: generated)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "Parse and validate without writing records")
	cmd.Flags().BoolVar(&req.SkipCompleted, "skip-completed", false, "Skip an extract whose fingerprint already ingested")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

type batchFlags struct {
	manifest      string
	entity        string
	period        string
	maxConcurrent int
	maxRetries    int
	force         bool
	dryRun        bool
	noSkip        bool
}

func (f *batchFlags) jobs(args []string) ([]service.BatchJob, error) {
	if f.manifest != "" {
		if len(args) > 0 {
			return nil, withCode(exitUsage, fmt.Errorf("files and --manifest are mutually exclusive"))
		}
		path, err := absPath(f.manifest)
		if err != nil {
			return nil, err
		}
		jobs, err := service.LoadBatchManifest(path)
		if err != nil {
			return nil, withCode(exitUsage, err)
		}
		if f.force {
			for i := range jobs {
				jobs[i].Force = true
			}
		}
		return jobs, nil
	}

	if len(args) == 0 {
		return nil, withCode(exitUsage, fmt.Errorf("either files or --manifest is required"))
	}
	if f.entity == "" || f.period == "" {
		return nil, withCode(exitUsage, fmt.Errorf("--entity and --period are required without --manifest"))
	}
	jobs := make([]service.BatchJob, 0, len(args))
	for _, arg := range args {
		path, err := absPath(arg)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, service.BatchJob{
			Name:   filepath.Base(path),
			Path:   path,
			Entity: f.entity,
			Period: f.period,
			Force:  f.force,
		})
	}
	return jobs, nil
}

func newIngestBatchCmd(root *rootOptions) *cobra.Command {
	f := &batchFlags{}

	cmd := &cobra.Command{
		Use:   "ingest-batch [FILE...]",
		Short: "Ingest several extracts concurrently with retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := f.jobs(args)
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), root, func(ctx context.Context, c *container.Container) error {
				opts := c.Config().BatchOptions()
				if cmd.Flags().Changed("max-concurrent") {
					opts.MaxConcurrent = f.maxConcurrent
				}
				if cmd.Flags().Changed("max-retries") {
					opts.MaxRetries = f.maxRetries
				}
				if f.noSkip {
					opts.SkipCompleted = false
				}
				opts.DryRun = f.dryRun

				summary, err := c.Services().Batch.IngestBatch(ctx, jobs, opts)
				if errors.Is(err, service.ErrInvalidRequest) {
					return withCode(exitUsage, err)
				}
				if err != nil {
					return err
				}
				if err := printJSON(cmd, summary); err != nil {
					return err
				}
				c.Logger().Info("Batch finished",
					zap.Int("completed", summary.Completed),
					zap.Int("failed", summary.Failed),
					zap.Int("cancelled", summary.Cancelled),
					zap.Duration("elapsed", summary.Elapsed),
				)
				if !summary.AllCompleted() {
					return withCode(exitFailure, errUnsuccessful)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&f.manifest, "manifest", "", "YAML batch manifest")
	cmd.Flags().StringVar(&f.entity, "entity", "", "Entity code for every FILE")
	cmd.Flags().StringVar(&f.period, "period", "", "Period (YYYY-MM) for every FILE")
	cmd.Flags().IntVar(&f.maxConcurrent, "max-concurrent", service.DefaultMaxConcurrent, "Maximum jobs running at once")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", service.DefaultMaxRetries, "Retries per job for transient failures")
	cmd.Flags().BoolVar(&f.force, "force", false, "Reprocess extracts that already completed")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Parse and validate without writing anything")
	cmd.Flags().BoolVar(&f.noSkip, "no-skip-completed", false, "Do not skip extracts whose fingerprint already completed")
	return cmd
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	var (
		req    service.ValidateRequest
		policy string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the expectation battery over an entity and period",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Policy = entity.PassPolicy(policy)

			return withContainer(cmd.Context(), root, func(ctx context.Context, c *container.Container) error {
				result, err := c.Services().Validation.Validate(ctx, req)
				if errors.Is(err, service.ErrInvalidRequest) {
					return withCode(exitUsage, err)
				}
				if err != nil {
					return err
				}
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				if !result.Passed {
					return withCode(exitFailure, errUnsuccessful)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Entity, "entity", "", "Entity code (required)")
	cmd.Flags().StringVar(&req.Period, "period", "", "Period as YYYY-MM (required)")
	cmd.Flags().BoolVar(&req.AutoRemediate, "auto-remediate", false, "Run remediation actions for failed expectations")
	cmd.Flags().StringVar(&policy, "policy", "", "Pass policy: strict or critical_only (default from config)")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func newAssignCmd(root *rootOptions) *cobra.Command {
	var (
		entityCode string
		period     string
		skipZero   bool
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign preparers and reviewers to unassigned accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), root, func(ctx context.Context, c *container.Container) error {
				skip := c.Config().Assignment.SkipZeroBalance
				if cmd.Flags().Changed("skip-zero") {
					skip = skipZero
				}
				results, err := c.Services().Assignment.AssignAccounts(ctx, entityCode, period, skip)
				if errors.Is(err, service.ErrInvalidRequest) {
					return withCode(exitUsage, err)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, results)
			})
		},
	}

	cmd.Flags().StringVar(&entityCode, "entity", "", "Entity code (required)")
	cmd.Flags().StringVar(&period, "period", "", "Period as YYYY-MM (required)")
	cmd.Flags().BoolVar(&skipZero, "skip-zero", false, "Skip accounts with a zero balance (default from config)")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func newRosterCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Manage the preparer and reviewer roster",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "load FILE",
		Short: "Load users from a YAML roster file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), root, func(ctx context.Context, c *container.Container) error {
				n, err := c.Services().Roster.LoadFile(ctx, args[0])
				if err != nil {
					return withCode(exitUsage, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d users\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), root, func(ctx context.Context, c *container.Container) error {
				users, err := c.Services().Roster.ListActive(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, users)
			})
		},
	})
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), root, func(ctx context.Context, c *container.Container) error {
				svc := c.Services()
				server := httpserver.NewServer(c.Config().ServerOptions(), httpserver.Services{
					Ingestion:  svc.Ingestion,
					Batch:      svc.Batch,
					Validation: svc.Validation,
					Assignment: svc.Assignment,
					Storage:    c.FileStorage(),
					Uploads:    c.Uploads(),
				}, zapSugar{c.Logger().Sugar()})

				c.Logger().Info("Starting closeflow", zap.String("address", server.Address()))
				return server.Start(ctx)
			})
		},
	}
}

// zapSugar adapts a sugared zap logger to the HTTP server's Logger interface
type zapSugar struct {
	s *zap.SugaredLogger
}

func (z zapSugar) Info(msg string, keysAndValues ...interface{})  { z.s.Infow(msg, keysAndValues...) }
func (z zapSugar) Error(msg string, keysAndValues ...interface{}) { z.s.Errorw(msg, keysAndValues...) }

