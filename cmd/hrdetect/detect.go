package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/claudia-liauw/health-app/internal/api"
	"github.com/claudia-liauw/health-app/internal/config"
	"github.com/claudia-liauw/health-app/internal/engine"
	"github.com/claudia-liauw/health-app/internal/ingest"
	"github.com/claudia-liauw/health-app/internal/model"
	"github.com/claudia-liauw/health-app/internal/models"
	"github.com/claudia-liauw/health-app/internal/queue"
	"github.com/claudia-liauw/health-app/internal/services"
	"github.com/claudia-liauw/health-app/internal/utils"
)

type detectOptions struct {
	input     string
	subjectID string
	after     string
	before    string
	server    string
	format    string

	interval  time.Duration
	window    int
	stride    int
	threshold float64
}

func newDetectCommand(root *rootOptions) *cobra.Command {
	opts := &detectOptions{}
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Score a subject's readings and print the anomalies",
		Long: "Reads samples from --input (local CSV or s3://bucket/key) or, without --input, from the\n" +
			"reading store, and prints every sample whose reconstruction error exceeds the threshold.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd, root, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.input, "input", "", "CSV export with Id,Time,Value columns (path or s3:// URL)")
	flags.StringVar(&opts.subjectID, "subject", "", "Subject id (defaults to the first subject found)")
	flags.StringVar(&opts.after, "after", "", "Only use readings at or after this time")
	flags.StringVar(&opts.before, "before", "", "Only use readings before this time, e.g. 2016-04-20")
	flags.StringVar(&opts.server, "server", "", "Send the request to a running hr-anomaly gRPC server instead of detecting locally")
	flags.StringVar(&opts.format, "format", "table", "Output format: table or json")
	flags.DurationVar(&opts.interval, "interval", 0, "Resampling interval override")
	flags.IntVar(&opts.window, "window", 0, "Window length override")
	flags.IntVar(&opts.stride, "stride", 0, "Window stride override")
	flags.Float64Var(&opts.threshold, "threshold", 0, "Anomaly score threshold override in percent")
	return cmd
}

func runDetect(cmd *cobra.Command, root *rootOptions, opts *detectOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}

	rng, err := parseRange(opts.after, opts.before)
	if err != nil {
		return err
	}
	detectOpts := models.DetectionOptions{
		Interval:     opts.interval,
		WindowLength: opts.window,
		Stride:       opts.stride,
	}
	if cmd.Flags().Changed("threshold") {
		threshold := opts.threshold
		detectOpts.Threshold = &threshold
	}

	var samples []models.Sample
	if opts.input != "" {
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
		samples, err = ingest.ReadCSV(rc, ingest.Filter{SubjectID: opts.subjectID, Range: rng})
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			return fmt.Errorf("no readings in %s match the filter", opts.input)
		}
		logger.Debug("readings loaded", slog.String("input", opts.input), slog.Int("count", len(samples)))
	}

	var report models.Report
	if opts.server != "" {
		report, err = detectRemote(cmd, opts.server, samples, opts.subjectID, rng, detectOpts)
	} else {
		report, err = detectLocal(cmd, cfg, logger, samples, opts.subjectID, rng, detectOpts)
	}
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), opts.format, report)
}

func detectLocal(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, samples []models.Sample, subjectID string, rng models.TimeRange, opts models.DetectionOptions) (models.Report, error) {
	ctx := cmd.Context()
	reconstructor, err := model.FromConfig(ctx, logger, cfg.Model)
	if err != nil {
		return models.Report{}, err
	}
	pipelineCfg, err := engine.ConfigFromSettings(cfg.Detection)
	if err != nil {
		return models.Report{}, err
	}
	pipeline := engine.NewPipeline(logger, reconstructor, pipelineCfg)

	if len(samples) > 0 {
		service := services.NewDetectionService(logger, pipeline, nil, queue.NopPublisher{})
		if subjectID == "" {
			subjectID = samples[0].SubjectID
		}
		return service.Detect(ctx, models.DetectRequest{SubjectID: subjectID, Samples: samples, Options: opts})
	}

	store, err := openStore(ctx, logger, cfg)
	if err != nil {
		return models.Report{}, err
	}
	defer store.Close()
	service := services.NewDetectionService(logger, pipeline, store, queue.NopPublisher{})
	return service.DetectSubject(ctx, models.SubjectRequest{SubjectID: subjectID, Range: rng, Options: opts})
}

func detectRemote(cmd *cobra.Command, address string, samples []models.Sample, subjectID string, rng models.TimeRange, opts models.DetectionOptions) (models.Report, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return models.Report{}, fmt.Errorf("dial %s: %w", address, err)
	}
	defer conn.Close()
	client := api.NewClient(conn)

	options := optionsToMap(opts)
	var out *structpb.Struct
	if len(samples) > 0 {
		items := make([]any, 0, len(samples))
		for _, s := range samples {
			var value any
			if !s.Missing() {
				value = s.Value
			}
			items = append(items, map[string]any{"time": s.Timestamp.UTC().Format(time.RFC3339Nano), "value": value})
		}
		if subjectID == "" {
			subjectID = samples[0].SubjectID
		}
		in, err := structpb.NewStruct(map[string]any{"subject_id": subjectID, "samples": items, "options": options})
		if err != nil {
			return models.Report{}, err
		}
		out, err = client.Detect(cmd.Context(), in)
		if err != nil {
			return models.Report{}, err
		}
	} else {
		fields := map[string]any{"subject_id": subjectID, "options": options}
		if !rng.Start.IsZero() {
			fields["start"] = rng.Start.UTC().Format(time.RFC3339Nano)
		}
		if !rng.End.IsZero() {
			fields["end"] = rng.End.UTC().Format(time.RFC3339Nano)
		}
		in, err := structpb.NewStruct(fields)
		if err != nil {
			return models.Report{}, err
		}
		out, err = client.DetectSubject(cmd.Context(), in)
		if err != nil {
			return models.Report{}, err
		}
	}
	return api.FromStructReport(out)
}

func optionsToMap(opts models.DetectionOptions) map[string]any {
	out := map[string]any{}
	if opts.Interval != 0 {
		out["interval"] = opts.Interval.String()
	}
	if opts.WindowLength != 0 {
		out["window_length"] = opts.WindowLength
	}
	if opts.Stride != 0 {
		out["stride"] = opts.Stride
	}
	if opts.Threshold != nil {
		out["threshold"] = *opts.Threshold
	}
	return out
}

func parseRange(after, before string) (models.TimeRange, error) {
	var rng models.TimeRange
	if after != "" {
		ts, err := utils.ParseTimestamp(after)
		if err != nil {
			return rng, fmt.Errorf("--after: %w", err)
		}
		rng.Start = ts
	}
	if before != "" {
		ts, err := utils.ParseTimestamp(before)
		if err != nil {
			return rng, fmt.Errorf("--before: %w", err)
		}
		rng.End = ts
	}
	return rng, nil
}
