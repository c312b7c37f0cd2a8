// Package verify checks a generated output tree: the index, every per-date
// document and the run manifest. It reads the tree the way a browser would,
// through the files alone, so it also catches output edited or damaged
// after generation.
package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/pipeline"
	"github.com/couchcryptid/pollen-map/internal/render"
	"github.com/couchcryptid/pollen-map/internal/repair"
)

var (
	optionRe       = regexp.MustCompile(`<option value="([^"]*)" data-src="([^"]*)"( selected)?>`)
	iframeRe       = regexp.MustCompile(`<iframe id="mapFrame" src="([^"]*)"`)
	emptyDataRe    = regexp.MustCompile(`"data": \[\]`)
	documentNameRe = regexp.MustCompile(`^map_(\d{4}-\d{2}-\d{2})\.html$`)
)

// Phase is one group of checks.
type Phase struct {
	Name   string
	Errors []string
	// Checked counts the items the phase looked at.
	Checked int
}

func (p *Phase) errorf(format string, args ...any) {
	p.Errors = append(p.Errors, fmt.Sprintf(format, args...))
}

// Passed reports whether the phase found no problems.
func (p *Phase) Passed() bool { return len(p.Errors) == 0 }

// Report is the outcome of Tree.
type Report struct {
	Phases []*Phase
}

// Passed reports whether every phase passed.
func (r Report) Passed() bool {
	for _, p := range r.Phases {
		if !p.Passed() {
			return false
		}
	}
	return true
}

// Tree verifies the output tree rooted at root.
func Tree(root string) (Report, error) {
	if fi, err := os.Stat(root); err != nil {
		return Report{}, fmt.Errorf("output directory: %w", err)
	} else if !fi.IsDir() {
		return Report{}, fmt.Errorf("output directory %s is not a directory", root)
	}

	docs, err := filepath.Glob(filepath.Join(root, render.MapsDir, "map_*.html"))
	if err != nil {
		return Report{}, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(docs)
	onDisk := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		rel, _ := filepath.Rel(root, d)
		onDisk[filepath.ToSlash(rel)] = struct{}{}
	}

	return Report{Phases: []*Phase{
		checkIndex(root, onDisk),
		checkDocuments(docs),
		checkManifest(root, onDisk),
	}}, nil
}

// checkIndex verifies option order, the default selection and that every
// option points at an existing document.
func checkIndex(root string, onDisk map[string]struct{}) *Phase {
	p := &Phase{Name: "index"}
	data, err := os.ReadFile(filepath.Join(root, render.IndexPath))
	if err != nil {
		p.errorf("read index: %v", err)
		return p
	}
	text := string(data)

	var dates, selected []string
	var selectedSrc string
	for _, m := range optionRe.FindAllStringSubmatch(text, -1) {
		p.Checked++
		date, src := m[1], m[2]
		if _, err := domain.ParseDate(date); err != nil {
			p.errorf("option %q is not a date", date)
			continue
		}
		if src != render.DocumentPath(date) {
			p.errorf("option %s points at %q, want %q", date, src, render.DocumentPath(date))
		}
		if _, ok := onDisk[src]; !ok {
			p.errorf("option %s points at missing document %s", date, src)
		}
		if len(dates) > 0 && date <= dates[len(dates)-1] {
			p.errorf("option %s is out of order or duplicated", date)
		}
		dates = append(dates, date)
		if m[3] != "" {
			selected = append(selected, date)
			selectedSrc = src
		}
	}

	m := iframeRe.FindStringSubmatch(text)
	if m == nil {
		p.errorf("index has no viewing frame")
		return p
	}
	if len(dates) == 0 {
		if m[1] != "about:blank" {
			p.errorf("empty index frames %q, want about:blank", m[1])
		}
		return p
	}

	latest := dates[len(dates)-1]
	switch {
	case len(selected) != 1:
		p.errorf("index selects %d dates, want exactly 1", len(selected))
	case selected[0] != latest:
		p.errorf("index selects %s, want the latest date %s", selected[0], latest)
	}
	if selectedSrc != "" && m[1] != selectedSrc {
		p.errorf("frame loads %q, want %q", m[1], selectedSrc)
	}
	return p
}

// checkDocuments decodes every document payload strictly.
func checkDocuments(paths []string) *Phase {
	p := &Phase{Name: "documents"}
	for _, path := range paths {
		p.Checked++
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		text := string(data)
		fileDate := documentNameRe.FindStringSubmatch(name)

		ex, err := repair.Extract(text)
		if err != nil {
			if errors.Is(err, domain.ErrNoEntries) && ex.Blocks == 1 && emptyDataRe.MatchString(text) {
				checkDate(p, name, ex.Date, fileDate)
				continue
			}
			p.errorf("%s: %v", name, err)
			continue
		}
		if ex.Blocks != 1 {
			p.errorf("%s: %d data blocks, want 1", name, ex.Blocks)
		}
		if ex.Tier != repair.TierStrict {
			p.errorf("%s: payload needed %s extraction", name, ex.Tier)
		}
		if ex.Duplicates > 0 {
			p.errorf("%s: %d duplicate cities", name, ex.Duplicates)
		}
		if ex.Skipped > 0 {
			p.errorf("%s: %d unusable entries", name, ex.Skipped)
		}
		for _, it := range ex.Items {
			if !it.HasCoords {
				p.errorf("%s: %s has no coordinates", name, it.Name)
			}
		}
		checkDate(p, name, ex.Date, fileDate)
	}
	return p
}

func checkDate(p *Phase, name, titleDate string, fileDate []string) {
	if fileDate == nil {
		p.errorf("%s: file name carries no date", name)
		return
	}
	if titleDate != fileDate[1] {
		p.errorf("%s: title date %q does not match file name", name, titleDate)
	}
}

// checkManifest cross-checks the run manifest when one is present.
func checkManifest(root string, onDisk map[string]struct{}) *Phase {
	p := &Phase{Name: "manifest"}
	data, err := os.ReadFile(filepath.Join(root, pipeline.ManifestPath))
	if errors.Is(err, os.ErrNotExist) {
		return p
	}
	if err != nil {
		p.errorf("read manifest: %v", err)
		return p
	}
	var report pipeline.Report
	if err := json.Unmarshal(data, &report); err != nil {
		p.errorf("decode manifest: %v", err)
		return p
	}
	if strings.TrimSpace(report.RunID) == "" {
		p.errorf("manifest has no run id")
	}
	for _, d := range report.Documents {
		p.Checked++
		if _, ok := onDisk[d.Path]; !ok {
			p.errorf("manifest lists missing document %s", d.Path)
		}
	}
	for _, f := range report.Failures {
		p.errorf("run recorded a failure for %s: %s", f.Date, f.Error)
	}
	return p
}
