package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fryguy04/evtx-to-json/internal/config"
	"github.com/fryguy04/evtx-to-json/internal/dlq"
	"github.com/fryguy04/evtx-to-json/internal/logger"
	"github.com/fryguy04/evtx-to-json/internal/metrics"
	"github.com/fryguy04/evtx-to-json/internal/pipeline"
	"github.com/fryguy04/evtx-to-json/internal/plugins"
	"github.com/fryguy04/evtx-to-json/internal/report"
	"github.com/fryguy04/evtx-to-json/internal/sink"
	"github.com/fryguy04/evtx-to-json/internal/source"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "evtx2json [flags] FILE...",
		Short: "Convert Windows event logs to JSON",
		Long: `evtx2json converts Windows event log files (.evtx, or XML exports) into
one JSON document per record.

Each FILE is written next to itself with a .json extension. Records are
appended, so running twice against the same file accumulates output. Records
that cannot be normalized are reported on stderr and skipped.`,
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				cfgFile = os.Getenv(config.EnvPrefix + "_CONFIG")
			}
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "load config: %v\n", err)
				return err
			}
			err = run(cmd.Context(), cfg, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "evtx2json: %v\n", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to YAML, JSON or TOML config file (env EVTX2JSON_CONFIG)")
	flags.Bool("stdout", false, "pretty-print records to stdout instead of writing FILE.json")
	flags.String("format", config.FormatConcat, "file output format: concat|jsonl|array")
	flags.String("source", "auto", "input kind: auto|evtx|xml")
	flags.Bool("dirty", false, "open .evtx files whose header was not closed cleanly")
	flags.String("report", "", "write a run report to this path (.json, .yaml or .yml)")
	flags.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
	flags.String("dlq", "", "append failed records to this JSONL file")
	flags.StringSlice("event-ids", nil, "only emit these event IDs")
	flags.StringSlice("channels", nil, "only emit these channels (case-insensitive)")
	flags.StringSlice("providers", nil, "only emit these providers (case-insensitive)")
	flags.StringSlice("redact-keys", nil, "EventData names whose values are redacted")
	flags.StringSlice("transforms", nil, "transforms to apply (default filter_redact)")
	flags.Int64("output-max-bytes", 0, "rotate FILE.json past this size (0 disables)")
	flags.Int("output-max-files", 0, "rotated files to keep (default 5)")
	flags.String("log-level", "", "log level: debug|info|warn|error (default info)")
	flags.String("log-format", "", "log format: json|text (default json)")

	return cmd
}

// run converts every path in order. A file that fails to open or hits a
// fatal error is reported and the remaining files still run; the returned
// error says how many failed.
func run(ctx context.Context, cfg config.Config, paths []string, stdout, stderr io.Writer) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, stderr); err != nil {
		return err
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	transforms, err := plugins.BuildTransforms(cfg)
	if err != nil {
		return err
	}

	var queue *dlq.Queue
	if cfg.DLQPath != "" {
		queue, err = dlq.NewQueue(cfg.DLQPath)
		if err != nil {
			return err
		}
		defer queue.Close()
	}

	rep := report.NewReport(runID)
	logger.InfoContext(ctx, "run started", "files", len(paths), "version", version)

	failed := 0
	for _, path := range paths {
		fr, err := convertFile(logger.WithFile(ctx, path), cfg, path, stdout, stderr, transforms, queue, rep)
		rep.AddFile(fr)
		if err != nil {
			failed++
			metrics.FilesTotal.WithLabelValues("error").Inc()
			logger.ErrorContext(ctx, "file failed", "file", path, "error", err)
		} else {
			metrics.FilesTotal.WithLabelValues("ok").Inc()
		}
		if ctx.Err() != nil {
			break
		}
	}

	rep.Finish()
	if queue != nil {
		logger.InfoContext(ctx, "dead-letter queue", "stats", queue.Stats())
	}
	if cfg.ReportPath != "" {
		if err := rep.Write(cfg.ReportPath); err != nil {
			logger.ErrorContext(ctx, "write report failed", "path", cfg.ReportPath, "error", err)
		}
	}
	if cfg.MetricsPath != "" {
		if err := metrics.WriteTextfile(cfg.MetricsPath); err != nil {
			logger.ErrorContext(ctx, "write metrics failed", "path", cfg.MetricsPath, "error", err)
		}
	}

	fmt.Fprintf(stderr,
		"Files: %d, Attempted: %d, Succeeded: %d, Failed: %d, Filtered: %d\n",
		len(rep.Files),
		rep.Attempted,
		rep.Succeeded,
		rep.Failed,
		rep.Filtered,
	)
	logger.InfoContext(ctx, "run complete",
		"files", len(rep.Files),
		"attempted", rep.Attempted,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"filtered", rep.Filtered,
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func convertFile(
	ctx context.Context,
	cfg config.Config,
	path string,
	stdout, stderr io.Writer,
	transforms []plugins.Transform,
	queue *dlq.Queue,
	rep *report.Report,
) (fr report.FileReport, err error) {
	fr.Path = path
	defer func() {
		if err != nil {
			fr.Error = err.Error()
		}
	}()

	src, err := source.Open(path, cfg.Source, source.Options{Dirty: cfg.Dirty})
	if err != nil {
		return fr, err
	}
	defer src.Close()

	w, err := sink.BuildTo(cfg, path, stdout)
	if err != nil {
		return fr, err
	}
	if f, ok := w.(*sink.File); ok {
		fr.Output = f.Path()
	}

	p := pipeline.New(w,
		pipeline.WithTransforms(transforms...),
		pipeline.WithDLQ(queue),
		pipeline.WithReport(rep),
		pipeline.WithDiagnostics(stderr),
	)
	res, runErr := p.Run(ctx, src)
	closeErr := w.Close()

	fr.Attempted = res.Attempted
	fr.Succeeded = res.Succeeded()
	fr.Failed = len(res.Failures)
	fr.Filtered = res.Filtered

	return fr, errors.Join(runErr, closeErr)
}
