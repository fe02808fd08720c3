// Package pipeline drives records from a source through normalization and
// transforms into a sink, one record at a time and in source order.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fryguy04/evtx-to-json/internal/dlq"
	"github.com/fryguy04/evtx-to-json/internal/logger"
	"github.com/fryguy04/evtx-to-json/internal/metrics"
	"github.com/fryguy04/evtx-to-json/internal/model"
	"github.com/fryguy04/evtx-to-json/internal/plugins"
	"github.com/fryguy04/evtx-to-json/internal/report"
	"github.com/fryguy04/evtx-to-json/internal/sink"
	"github.com/fryguy04/evtx-to-json/internal/source"
	"github.com/fryguy04/evtx-to-json/internal/stages"
)

// DiagnosticDelimiter opens and closes the block printed for a failed record.
const DiagnosticDelimiter = "***********"

// Result is what one file produced. Events holds the written events in
// source order.
type Result struct {
	Path      string
	Events    []*model.Event
	Failures  []*model.RecordError
	Attempted int
	Filtered  int
}

// Succeeded is the number of events written.
func (r Result) Succeeded() int {
	return len(r.Events)
}

// Pipeline converts the records of one source at a time.
type Pipeline struct {
	sink       sink.Writer
	transforms []plugins.Transform
	dlq        *dlq.Queue
	report     *report.Report
	diag       io.Writer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTransforms runs ts, in order, on every normalized event.
func WithTransforms(ts ...plugins.Transform) Option {
	return func(p *Pipeline) { p.transforms = append(p.transforms, ts...) }
}

// WithDLQ appends failed records to q.
func WithDLQ(q *dlq.Queue) Option {
	return func(p *Pipeline) { p.dlq = q }
}

// WithReport counts written events and failures into r.
func WithReport(r *report.Report) Option {
	return func(p *Pipeline) { p.report = r }
}

// WithDiagnostics sets where failure blocks are printed. Default: stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(p *Pipeline) { p.diag = w }
}

// New builds a pipeline writing to w.
func New(w sink.Writer, opts ...Option) *Pipeline {
	p := &Pipeline{sink: w, diag: os.Stderr}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drains src. Record-level failures are reported and skipped. A decode
// error from the source, a sink error, a transform error of a fatal kind or
// cancellation of ctx stops the file and is returned along with what was
// produced so far.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (Result, error) {
	var res Result
	start := time.Now()

	defer func() {
		logger.InfoContext(ctx, "file complete",
			"attempted", res.Attempted,
			"succeeded", res.Succeeded(),
			"failed", len(res.Failures),
			"filtered", res.Filtered,
			"duration", time.Since(start),
		)
	}()

	for {
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			logger.ErrorContext(ctx, "source aborted", "after", res.Attempted, "error", err)
			return res, err
		}
		if res.Path == "" {
			res.Path = rec.Handle.Path
		}
		res.Attempted++

		begin := time.Now()
		out := stages.Normalize(rec)
		metrics.NormalizationDuration.Observe(time.Since(begin).Seconds())
		if !out.Ok() {
			p.fail(ctx, &res, out.Err, rec.XML)
			continue
		}

		ev := out.Event
		drop, reason, err := p.transform(ev)
		if err != nil {
			rerr := model.NewRecordError(ev.Handle, ev.Doc, err)
			if rerr.Kind.Fatal() {
				logger.ErrorContext(ctx, "transform aborted file", "index", ev.Handle.Index, "error", err)
				return res, rerr
			}
			p.fail(ctx, &res, rerr, rec.XML)
			continue
		}
		if drop {
			res.Filtered++
			metrics.RecordsTotal.WithLabelValues(metrics.StatusFiltered).Inc()
			logger.DebugContext(ctx, "record filtered", "index", ev.Handle.Index, "reason", reason)
			continue
		}

		if err := p.sink.Write(ev); err != nil {
			logger.ErrorContext(ctx, "sink write failed", "index", ev.Handle.Index, "error", err)
			return res, fmt.Errorf("record %d: %w", ev.Handle.Index, err)
		}

		res.Events = append(res.Events, ev)
		metrics.RecordsTotal.WithLabelValues(metrics.StatusSucceeded).Inc()
		metrics.PayloadShapes.WithLabelValues(ev.Shape).Inc()
		if p.report != nil {
			p.report.AddEvent(ev)
		}
	}
}

func (p *Pipeline) transform(ev *model.Event) (bool, string, error) {
	for _, t := range p.transforms {
		drop, reason, err := t(ev)
		if err != nil || drop {
			return drop, reason, err
		}
	}
	return false, "", nil
}

// fail reports a record-scope failure and lets the loop continue.
func (p *Pipeline) fail(ctx context.Context, res *Result, rerr *model.RecordError, rawXML []byte) {
	res.Failures = append(res.Failures, rerr)

	metrics.RecordsTotal.WithLabelValues(metrics.StatusFailed).Inc()
	metrics.RecordFailures.WithLabelValues(rerr.Kind.String()).Inc()
	if p.report != nil {
		p.report.AddFailure(rerr.Kind)
	}

	logger.WarnContext(ctx, "record failed",
		"index", rerr.Handle.Index,
		"record_id", rerr.Handle.RecordID,
		"kind", rerr.Kind.String(),
		"error", rerr.Err,
	)
	writeDiagnostic(p.diag, rerr, rawXML)

	if err := p.dlq.Write(ctx, rerr, rawXML); err != nil {
		logger.ErrorContext(ctx, "dead-letter write failed", "index", rerr.Handle.Index, "error", err)
	}
}

// writeDiagnostic prints the delimited failure block: the error followed by
// the record as far as it was built, or its raw text when no tree exists.
func writeDiagnostic(w io.Writer, rerr *model.RecordError, rawXML []byte) {
	if w == nil {
		return
	}

	body := string(rawXML)
	if rerr.Partial != nil {
		if data, err := model.MarshalJSON(rerr.Partial); err == nil {
			var pretty bytes.Buffer
			if json.Indent(&pretty, data, "", "  ") == nil {
				body = pretty.String()
			}
		}
	}

	fmt.Fprintf(w, "%s\nParsing Exception\n%v\n%s\n%s\n", DiagnosticDelimiter, rerr, body, DiagnosticDelimiter)
}
