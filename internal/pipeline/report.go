package pipeline

import (
	"sort"
	"time"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

// DocumentResult records one written document.
type DocumentResult struct {
	Date    string `json:"date"`
	Path    string `json:"path"`
	Entries int    `json:"entries"`
}

// Failure records a date whose document could not be produced.
type Failure struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// Report summarises a generation run. It is also written as the run manifest.
type Report struct {
	RunID        string           `json:"run_id"`
	GeneratedAt  time.Time        `json:"generated_at"`
	RowsRead     int              `json:"rows_read"`
	RowsAccepted int              `json:"rows_accepted"`
	Rejected     map[string]int   `json:"rejected"`
	Warnings     []domain.Warning `json:"warnings"`
	Documents    []DocumentResult `json:"documents"`
	Failures     []Failure        `json:"failures"`
	Published    int              `json:"published,omitempty"`
	PublishError string           `json:"publish_error,omitempty"`
	Duration     time.Duration    `json:"duration_ns"`
}

// OK reports whether every requested date was written and published.
func (r *Report) OK() bool {
	return len(r.Failures) == 0 && r.PublishError == ""
}

// Dates returns the dates of the written documents, ascending.
func (r *Report) Dates() []string {
	out := make([]string, 0, len(r.Documents))
	for _, d := range r.Documents {
		out = append(out, d.Date)
	}
	return out
}

func (r *Report) sortFailures() {
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Date < r.Failures[j].Date })
}
