package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

var fileDateRe = regexp.MustCompile(`map_(\d{4}-\d{2}-\d{2})\.html$`)

// FileWriter persists a repaired document.
type FileWriter interface {
	WriteFile(path string, data []byte) error
}

// FileResult is the outcome for one file of a batch.
type FileResult struct {
	Path   string
	Result Result
	Err    error
}

// BatchReport summarises RepairDir.
type BatchReport struct {
	Files    []FileResult
	Repaired int
	Failed   int
}

// RepairDir repairs every map_*.html document in dir. A file that cannot be
// repaired is reported and left untouched; it never stops the batch. With a
// nil writer nothing is written.
func (r *Repairer) RepairDir(ctx context.Context, dir string, w FileWriter) (BatchReport, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "map_*.html"))
	if err != nil {
		return BatchReport{}, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(paths)

	var report BatchReport
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fr := r.RepairFile(path, w)
		if fr.Err != nil {
			report.Failed++
			r.logger.Error("repair failed", "path", path, "recovered", fr.Result.Recovered, "error", fr.Err)
		} else {
			report.Repaired++
			r.logger.Info("repaired document",
				"path", path,
				"date", fr.Result.Date,
				"recovered", fr.Result.Recovered,
				"duplicates", fr.Result.Duplicates,
				"tier", fr.Result.Tier,
			)
		}
		report.Files = append(report.Files, fr)
	}
	return report, nil
}

// RepairFile repairs the document at path and writes it back through w. The
// date in a map_<date>.html file name is used when the title has none. With
// a nil writer nothing is written.
func (r *Repairer) RepairFile(path string, w FileWriter) FileResult {
	fr := FileResult{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		fr.Err = fmt.Errorf("read: %w", err)
		return fr
	}

	var fallback string
	if m := fileDateRe.FindStringSubmatch(filepath.Base(path)); m != nil {
		fallback = m[1]
	}
	fr.Result, fr.Err = r.RepairDated(string(data), fallback)
	var exErr *domain.ExtractionError
	if errors.As(fr.Err, &exErr) {
		exErr.Source = filepath.Base(path)
	}
	if fr.Err != nil || w == nil {
		return fr
	}
	if err := w.WriteFile(path, fr.Result.Document); err != nil {
		fr.Err = fmt.Errorf("write: %w", err)
	}
	return fr
}
