package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/dto"
	"github.com/noah-isme/season-scheduler/internal/models"
	"github.com/noah-isme/season-scheduler/internal/service"
	"github.com/noah-isme/season-scheduler/pkg/export"
)

type runOptions struct {
	file       string
	out        string
	format     string
	iterations int
	seed       int64
	timeout    time.Duration
	quiet      bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	c := &cobra.Command{
		Use:   "run",
		Short: "Optimize a season configuration and write the schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSeason(ctx, opts, cmd.Flags().Changed("seed"), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	c.Flags().StringVarP(&opts.file, "file", "f", "", "season configuration JSON file (- for stdin)")
	c.Flags().StringVarP(&opts.out, "out", "o", "", "output file (defaults to stdout)")
	c.Flags().StringVar(&opts.format, "format", "csv", "output format: csv, pdf or json")
	c.Flags().IntVar(&opts.iterations, "iterations", 0, "override simulated annealing iterations")
	c.Flags().Int64Var(&opts.seed, "seed", 0, "override the random seed")
	c.Flags().DurationVar(&opts.timeout, "timeout", 0, "stop the search after this long and keep the best schedule")
	c.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress")
	_ = c.MarkFlagRequired("file")
	return c
}

func newValidateCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "validate",
		Short: "Check a season configuration without optimizing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := newBuilder().Build(req)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s %s, %d teams, %d games per team, seed %d\n",
				cfg.Sport, cfg.Format, len(cfg.Teams), cfg.GamesPerTeam, cfg.Seed)
			return nil
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "season configuration JSON file (- for stdin)")
	_ = c.MarkFlagRequired("file")
	return c
}

func newBuilder() *service.SeasonConfigBuilder {
	return service.NewSeasonConfigBuilder(nil, service.SeasonBuilderConfig{})
}

func runSeason(ctx context.Context, opts runOptions, seedSet bool, stdout, stderr io.Writer) error {
	format := strings.ToLower(opts.format)
	if format != "json" && !models.ExportFormat(format).Valid() {
		return fmt.Errorf("unsupported --format %q", opts.format)
	}
	req, err := readRequest(opts.file, os.Stdin)
	if err != nil {
		return err
	}
	if opts.iterations > 0 {
		req.SimulatedAnnealingIterations = opts.iterations
	}
	if seedSet {
		req.Seed = &opts.seed
	}
	if opts.timeout > 0 {
		req.TimeoutSeconds = int(opts.timeout.Round(time.Second) / time.Second)
	}

	cfg, err := newBuilder().Build(req)
	if err != nil {
		return describe(err)
	}

	var reporter service.ProgressReporter = service.MultiProgressReporter(nil)
	if !opts.quiet {
		reporter = service.ProgressReporterFunc(func(_ context.Context, event models.ProgressEvent) {
			fmt.Fprintf(stderr, "%-10s %3d%%  soft=%.4f hard=%.0f\n",
				event.Stage, event.Progress, event.Metrics["softScore"], event.Metrics["hardViolations"])
		})
	}
	job := service.NewOptimizationJob(cfg, service.JobOptions{
		ID:       uuid.NewString(),
		Reporter: reporter,
		Logger:   zap.NewNop(),
	})
	schedule, err := job.Run(ctx)
	var unsatisfied *service.ConstraintsUnsatisfiedError
	switch {
	case errors.As(err, &unsatisfied):
		fmt.Fprintf(stderr, "warning: %v\n", err)
	case err != nil && schedule == nil:
		return describe(err)
	case err != nil:
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}

	payload, err := render(schedule, format)
	if err != nil {
		return err
	}
	if opts.out == "" {
		_, err = stdout.Write(payload)
		return err
	}
	return os.WriteFile(opts.out, payload, 0o644)
}

func render(schedule *models.Schedule, format string) ([]byte, error) {
	if format == "json" {
		return json.MarshalIndent(schedule, "", "  ")
	}
	exporter := service.NewExportService(nil, nil, service.ExportConfig{}, nil, export.NewCSVExporter(), export.NewPDFExporter())
	return exporter.Render(schedule, models.ExportFormat(format))
}

func readRequest(file string, stdin io.Reader) (dto.SeasonScheduleRequest, error) {
	var req dto.SeasonScheduleRequest
	var r io.Reader = stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return req, fmt.Errorf("open configuration: %w", err)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode configuration: %w", err)
	}
	return req, nil
}

// describe flattens scheduling errors into one readable message per problem.
func describe(err error) error {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		lines := make([]string, 0, len(verr.Fields)+1)
		lines = append(lines, "invalid season configuration:")
		for _, f := range verr.Fields {
			lines = append(lines, "  "+f.String())
		}
		return errors.New(strings.Join(lines, "\n"))
	}
	return err
}
