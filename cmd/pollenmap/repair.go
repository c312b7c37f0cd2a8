package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pollen-map/internal/adapter/fs"
	"github.com/couchcryptid/pollen-map/internal/render"
	"github.com/couchcryptid/pollen-map/internal/repair"
)

var errRepairFailed = errors.New("one or more documents could not be repaired")

func newRepairCmd() *cobra.Command {
	var dryRun bool
	var outPath string

	cmd := &cobra.Command{
		Use:   "repair [file-or-dir]",
		Short: "Recover the data payload of damaged map documents and re-emit them",
		Long: `Recovers the (city, level) entries embedded in a previously generated map
document, even when its data block is malformed or truncated, and rewrites the
document through the regular renderer. Given a directory (an output root or
its maps directory) every map_*.html file is repaired in place. Files that
yield no entries are reported and left untouched; the command then exits 1.
Without an argument the configured output directory is repaired.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			target := e.cfg.OutputDir
			if len(args) == 1 {
				target = args[0]
			}

			table, err := e.cityTable()
			if err != nil {
				return err
			}
			emitter, err := e.emitter(table)
			if err != nil {
				return err
			}
			repairer := repair.NewRepairer(emitter, table, e.logger, e.metrics)

			fi, err := os.Stat(target)
			if err != nil {
				return err
			}
			if fi.IsDir() {
				if outPath != "" {
					return errors.New("--out applies to a single file only")
				}
				return repairDir(cmd, e, repairer, target, dryRun)
			}
			return repairOne(cmd.OutOrStdout(), e, repairer, target, outPath, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be recovered without writing")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the repaired file here instead of in place")
	cmd.Flags().Bool("precompress", false, "also write .html.gz siblings")
	return cmd
}

func repairDir(cmd *cobra.Command, e *env, r *repair.Repairer, dir string, dryRun bool) error {
	if sub := filepath.Join(dir, render.MapsDir); isDir(sub) {
		dir = sub
	}
	var w repair.FileWriter
	if !dryRun {
		fw, err := fs.NewWriter(dir, e.cfg.Precompress)
		if err != nil {
			return err
		}
		w = fw
	}

	report, err := r.RepairDir(cmd.Context(), dir, w)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, f := range report.Files {
		printFileResult(out, f)
	}
	fmt.Fprintf(out, "%d repaired, %d failed\n", report.Repaired, report.Failed)
	if report.Failed > 0 {
		return errRepairFailed
	}
	return nil
}

func repairOne(out io.Writer, e *env, r *repair.Repairer, path, outPath string, dryRun bool) error {
	var w repair.FileWriter
	if !dryRun {
		fw, err := fs.NewWriter(filepath.Dir(path), e.cfg.Precompress)
		if err != nil {
			return err
		}
		w = fw
		if outPath != "" {
			w = redirect{to: outPath, w: fw}
		}
	}

	fr := r.RepairFile(path, w)
	printFileResult(out, fr)
	if fr.Err != nil {
		return errRepairFailed
	}
	return nil
}

// redirect sends the repaired document to another path.
type redirect struct {
	to string
	w  repair.FileWriter
}

func (r redirect) WriteFile(_ string, data []byte) error {
	return r.w.WriteFile(r.to, data)
}

func printFileResult(w io.Writer, f repair.FileResult) {
	name := filepath.Base(f.Path)
	if f.Err != nil {
		fmt.Fprintf(w, "FAIL %s: %v\n", name, f.Err)
		return
	}
	res := f.Result
	date := res.Date
	if date == "" {
		date = render.UnknownDate
	}
	fmt.Fprintf(w, "OK   %s: %s, %d entries (%s tier", name, date, res.Snapshot.Len(), res.Tier)
	if res.Duplicates > 0 {
		fmt.Fprintf(w, ", %d duplicates dropped", res.Duplicates)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(w, ", %d unusable", res.Skipped)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(w, ", %d without coordinates", res.Dropped)
	}
	fmt.Fprintln(w, ")")
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
