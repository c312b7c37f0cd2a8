package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/observability"
	"github.com/couchcryptid/pollen-map/internal/render"
)

// ManifestPath is the run manifest's path relative to the output root.
const ManifestPath = "manifest.json"

// RowSource reads the full measurement table.
type RowSource interface {
	ReadRows(ctx context.Context) ([]domain.MeasurementRow, error)
}

// DocumentSink persists the generated output tree.
type DocumentSink interface {
	WriteDocument(ctx context.Context, doc domain.Document) error
	WriteIndex(ctx context.Context, content []byte) error
	WriteManifest(ctx context.Context, content []byte) error
}

// SnapshotPublisher distributes rendered snapshots to downstream consumers.
type SnapshotPublisher interface {
	PublishSnapshots(ctx context.Context, runID string, snapshots []domain.Snapshot) error
}

// Options tune a Generator.
type Options struct {
	// Workers bounds concurrent document rendering. Values below 1 mean 1.
	Workers int
	// From and To optionally extend the requested dates to an inclusive range.
	From string
	To   string
}

// Generator turns a measurement table into per-date documents, an index,
// and a run manifest.
type Generator struct {
	source    RowSource
	resolver  domain.CityResolver
	emitter   *render.Emitter
	sink      DocumentSink
	publisher SnapshotPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool
}

// New creates a Generator. Attach a publisher with WithPublisher.
func New(source RowSource, resolver domain.CityResolver, emitter *render.Emitter, sink DocumentSink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Generator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Generator{
		source:   source,
		resolver: resolver,
		emitter:  emitter,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// WithPublisher sets an optional publisher invoked after documents are written.
func (g *Generator) WithPublisher(p SnapshotPublisher) *Generator {
	g.publisher = p
	return g
}

// CheckReadiness returns nil once a run has written its index.
func (g *Generator) CheckReadiness(_ context.Context) error {
	if !g.ready.Load() {
		return errors.New("generator has not completed a run yet")
	}
	return nil
}

// Run executes one generation pass. Per-row and per-date problems are
// recorded in the report; only failures that leave no usable output tree
// (unreadable input, index or manifest write errors, cancellation) are
// returned as errors.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	g.metrics.GeneratorRunning.Set(1)
	defer g.metrics.GeneratorRunning.Set(0)

	report := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: domain.Now(),
		Rejected:    map[string]int{},
	}
	logger := g.logger.With("run_id", report.RunID)
	logger.Info("generation started", "workers", g.opts.Workers)

	rows, err := g.source.ReadRows(ctx)
	if err != nil {
		return report, fmt.Errorf("read rows: %w", err)
	}
	report.RowsRead = len(rows)
	g.metrics.RowsRead.Add(float64(len(rows)))

	norm := domain.NormalizeRows(rows, g.resolver)
	report.RowsAccepted = len(norm.Rows)
	report.Rejected = norm.Rejected
	report.Warnings = norm.Warnings
	for _, w := range norm.Warnings {
		g.metrics.RowWarnings.WithLabelValues(w.Reason).Inc()
		logger.Warn("row warning", "reason", w.Reason, "line", w.Line, "city", w.City, "date", w.Date, "detail", w.Detail)
	}

	rangeDates, err := domain.DateRange(g.opts.From, g.opts.To)
	if err != nil {
		return report, fmt.Errorf("requested range: %w", err)
	}
	snapshots := domain.BuildSnapshots(norm.Rows, domain.MergeDates(norm.Dates, rangeDates))

	written, err := g.renderAll(ctx, logger, snapshots, report)
	if err != nil {
		return report, err
	}

	dates := make([]string, 0, len(written))
	for _, s := range written {
		dates = append(dates, s.Date)
	}
	index, err := g.emitter.Index(dates)
	if err != nil {
		return report, fmt.Errorf("render index: %w", err)
	}
	if err := g.sink.WriteIndex(ctx, index); err != nil {
		return report, fmt.Errorf("write index: %w", err)
	}

	if g.publisher != nil && len(written) > 0 {
		if err := g.publisher.PublishSnapshots(ctx, report.RunID, written); err != nil {
			report.PublishError = err.Error()
			logger.Error("publish snapshots failed", "error", err, "snapshots", len(written))
		} else {
			report.Published = len(written)
			g.metrics.SnapshotsPublished.Add(float64(len(written)))
		}
	}

	report.Duration = time.Since(start)
	manifest, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report, fmt.Errorf("encode manifest: %w", err)
	}
	if err := g.sink.WriteManifest(ctx, manifest); err != nil {
		return report, fmt.Errorf("write manifest: %w", err)
	}

	g.metrics.RunDuration.Observe(report.Duration.Seconds())
	g.ready.Store(true)
	logger.Info("generation finished",
		"rows_read", report.RowsRead,
		"rows_accepted", report.RowsAccepted,
		"documents", len(report.Documents),
		"failures", len(report.Failures),
		"duration", report.Duration,
	)
	return report, nil
}

// renderAll renders and writes every snapshot concurrently. A failing date is
// recorded and never stops the others. The written snapshots are returned in
// date order.
func (g *Generator) renderAll(ctx context.Context, logger *slog.Logger, snapshots []domain.Snapshot, report *Report) ([]domain.Snapshot, error) {
	results := make([]*DocumentResult, len(snapshots))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for i, snap := range snapshots {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			doc, err := g.emitter.Render(snap)
			if err == nil {
				err = g.sink.WriteDocument(egCtx, doc)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g.metrics.RenderFailures.Inc()
				logger.Error("document failed", "date", snap.Date, "error", err)
				mu.Lock()
				report.Failures = append(report.Failures, Failure{Date: snap.Date, Error: err.Error()})
				mu.Unlock()
				// Do not propagate; other dates still render.
				return nil
			}
			g.metrics.DocumentsWritten.Inc()
			g.metrics.SnapshotEntries.Observe(float64(doc.Entries))
			results[i] = &DocumentResult{Date: doc.Date, Path: doc.Path, Entries: doc.Entries}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("render documents: %w", err)
	}

	written := make([]domain.Snapshot, 0, len(snapshots))
	for i, r := range results {
		if r == nil {
			continue
		}
		report.Documents = append(report.Documents, *r)
		written = append(written, snapshots[i])
	}
	report.sortFailures()
	return written, nil
}
