package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pollen-map/internal/adapter/fs"
	kafkaadapter "github.com/couchcryptid/pollen-map/internal/adapter/kafka"
	"github.com/couchcryptid/pollen-map/internal/adapter/source"
	"github.com/couchcryptid/pollen-map/internal/pipeline"
)

var errIncompleteRun = errors.New("generation finished with failures")

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render one map per date plus the index from a measurement table",
		Long: `Reads the measurement table (CSV, JSON array or JSON lines), renders one
map document per date under <output-dir>/maps, the date index at
<output-dir>/index.html and a run manifest. A date that fails to render is
reported and the remaining dates are still written; the command then exits 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			gen, closeFn, err := e.generator()
			if err != nil {
				return err
			}
			defer closeFn()

			return runGeneration(cmd.Context(), gen, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "measurement table to read")
	f.String("input-format", "", "input format: csv, json or jsonl (default from extension)")
	f.String("from", "", "first date to emit even without readings (YYYY-MM-DD)")
	f.String("to", "", "last date to emit even without readings (YYYY-MM-DD)")
	f.Int("workers", 0, "concurrent document renders")
	f.Bool("precompress", false, "also write .html.gz siblings")
	f.StringSlice("kafka-brokers", nil, "publish snapshots to these Kafka brokers")
	f.String("kafka-topic", "", "Kafka topic for published snapshots")
	return cmd
}

// generator wires a Generator from configuration. The returned func releases
// the publisher, if any.
func (e *env) generator() (*pipeline.Generator, func(), error) {
	noop := func() {}
	if e.cfg.Input == "" {
		return nil, noop, errors.New("no input table: set --input or input in the config")
	}
	src, err := source.NewFile(e.cfg.Input, source.Format(e.cfg.InputFormat))
	if err != nil {
		return nil, noop, err
	}
	table, err := e.cityTable()
	if err != nil {
		return nil, noop, err
	}
	emitter, err := e.emitter(table)
	if err != nil {
		return nil, noop, err
	}
	sink, err := fs.NewWriter(e.cfg.OutputDir, e.cfg.Precompress)
	if err != nil {
		return nil, noop, err
	}

	gen := pipeline.New(src, table, emitter, sink, e.logger, e.metrics, pipeline.Options{
		Workers: e.cfg.Workers,
		From:    e.cfg.From,
		To:      e.cfg.To,
	})
	if !e.cfg.KafkaEnabled() {
		return gen, noop, nil
	}

	pub := kafkaadapter.NewPublisher(e.cfg.KafkaBrokers, e.cfg.KafkaTopic, e.logger)
	gen.WithPublisher(pub)
	e.logger.Info("snapshot publishing enabled", "brokers", e.cfg.KafkaBrokers, "topic", e.cfg.KafkaTopic)
	return gen, func() {
		if err := pub.Close(); err != nil {
			e.logger.Error("kafka publisher close error", "error", err)
		}
	}, nil
}

func printReport(w io.Writer, r *pipeline.Report) {
	fmt.Fprintf(w, "run %s: %d rows read, %d accepted\n", r.RunID, r.RowsRead, r.RowsAccepted)
	reasons := make([]string, 0, len(r.Rejected))
	for reason := range r.Rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  rejected %-20s %d\n", reason, r.Rejected[reason])
	}
	fmt.Fprintf(w, "wrote %d documents", len(r.Documents))
	if dates := r.Dates(); len(dates) > 0 {
		fmt.Fprintf(w, " (%s .. %s)", dates[0], dates[len(dates)-1])
	}
	fmt.Fprintln(w)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  FAILED %s: %s\n", f.Date, f.Error)
	}
	if r.Published > 0 {
		fmt.Fprintf(w, "published %d snapshots\n", r.Published)
	}
	if r.PublishError != "" {
		fmt.Fprintf(w, "  publish FAILED: %s\n", r.PublishError)
	}
}

// runGeneration is the shared body of generate and serve --generate.
func runGeneration(ctx context.Context, gen *pipeline.Generator, w io.Writer) error {
	report, err := gen.Run(ctx)
	if err != nil {
		return err
	}
	printReport(w, report)
	if !report.OK() {
		return errIncompleteRun
	}
	return nil
}
