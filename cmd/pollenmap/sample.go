package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pollen-map/internal/adapter/fs"
	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/sample"
)

func newSampleCmd() *cobra.Command {
	var (
		opts    sample.Options
		endDate string
		format  string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a deterministic sample measurement table",
		Long: `Generates readings for a random pick of cities over consecutive days ending
at --end (default today). The same --seed always produces the same table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if endDate != "" {
				end, err := domain.ParseDate(endDate)
				if err != nil {
					return fmt.Errorf("--end %q: %w", endDate, err)
				}
				opts.End = end
			}
			table, err := e.cityTable()
			if err != nil {
				return err
			}
			rows, err := sample.Generate(table.Cities(), opts)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := encodeRows(&buf, rows, format); err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			w, err := fs.NewWriter(".", false)
			if err != nil {
				return err
			}
			if err := w.WriteFile(outPath, buf.Bytes()); err != nil {
				return err
			}
			e.logger.Info("sample written", "path", outPath, "rows", len(rows))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Cities, "cities", 5, "number of cities")
	f.IntVar(&opts.Days, "days", 30, "number of days")
	f.Uint64Var(&opts.Seed, "seed", 42, "random seed")
	f.StringVar(&endDate, "end", "", "last date (YYYY-MM-DD, default today)")
	f.StringVar(&format, "format", "csv", "output format: csv, json or jsonl")
	f.StringVarP(&outPath, "out", "o", "", "write here instead of stdout")
	return cmd
}

func encodeRows(w io.Writer, rows []domain.MeasurementRow, format string) error {
	switch format {
	case "csv":
		return sample.WriteCSV(w, rows)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "jsonl":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
