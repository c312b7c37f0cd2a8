// Package render emits the per-date map documents and the index document
// that navigates between them.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// MapsDir is the output subdirectory holding per-date documents.
const MapsDir = "maps"

// IndexPath is the navigation document's path relative to the output root.
const IndexPath = "index.html"

// TitlePrefix starts every document title; the date follows it.
const TitlePrefix = "全国花粉分布地图 - "

// UnknownDate stands in for the date in the title of an undated document.
const UnknownDate = "未知日期"

// DefaultEchartsMirrors are tried in order to load the rendering library.
var DefaultEchartsMirrors = []string{
	"https://cdn.jsdelivr.net/npm/echarts@5/dist/echarts.min.js",
	"https://unpkg.com/echarts@5/dist/echarts.min.js",
	"https://cdnjs.cloudflare.com/ajax/libs/echarts/5.4.3/echarts.min.js",
}

// DefaultChinaMapMirrors are tried in order to load the China base map.
var DefaultChinaMapMirrors = []string{
	"https://cdn.jsdelivr.net/npm/echarts@4.9.0/map/js/china.js",
	"https://unpkg.com/echarts@4.9.0/map/js/china.js",
}

// Options configures an Emitter. Empty mirror lists fall back to the defaults.
type Options struct {
	EchartsMirrors  []string
	ChinaMapMirrors []string
	CenterLon       float64
	CenterLat       float64
}

// Emitter renders documents from parsed templates. It is safe for concurrent use.
type Emitter struct {
	doc   *template.Template
	index *template.Template
	opts  Options
}

// NewEmitter parses the embedded templates.
func NewEmitter(opts Options) (*Emitter, error) {
	if len(opts.EchartsMirrors) == 0 {
		opts.EchartsMirrors = DefaultEchartsMirrors
	}
	if len(opts.ChinaMapMirrors) == 0 {
		opts.ChinaMapMirrors = DefaultChinaMapMirrors
	}

	doc, err := template.ParseFS(templateFS, "templates/document.html")
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	index, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	return &Emitter{doc: doc, index: index, opts: opts}, nil
}

type documentData struct {
	Title           string
	GeneratedAt     string
	EchartsMirrors  []string
	ChinaMapMirrors []string
	LevelLabels     []string
	Legend          []domain.LegendPiece
	CenterLon       float64
	CenterLat       float64
	Payload         template.JS
}

// Document renders one snapshot. An empty snapshot yields a valid document
// with an empty payload, and an empty date yields an undated title. Invalid
// entries fail the document with a *domain.RenderError.
func (e *Emitter) Document(s domain.Snapshot) ([]byte, error) {
	title := TitlePrefix + UnknownDate
	if s.Date != "" {
		if _, err := time.Parse(domain.DateLayout, s.Date); err != nil {
			return nil, &domain.RenderError{Date: s.Date, Err: fmt.Errorf("invalid date: %w", err)}
		}
		title = TitlePrefix + s.Date
	}
	payload, err := EncodePayload(s)
	if err != nil {
		return nil, &domain.RenderError{Date: s.Date, Err: err}
	}

	data := documentData{
		Title:           title,
		GeneratedAt:     domain.Now().Format(time.RFC3339),
		EchartsMirrors:  e.opts.EchartsMirrors,
		ChinaMapMirrors: e.opts.ChinaMapMirrors,
		LevelLabels:     levelLabels(),
		Legend:          domain.Legend(),
		CenterLon:       e.opts.CenterLon,
		CenterLat:       e.opts.CenterLat,
		Payload:         template.JS(payload),
	}

	var buf bytes.Buffer
	if err := e.doc.Execute(&buf, data); err != nil {
		return nil, &domain.RenderError{Date: s.Date, Err: fmt.Errorf("execute template: %w", err)}
	}
	return buf.Bytes(), nil
}

// Render renders a snapshot into a domain.Document addressed by DocumentPath.
func (e *Emitter) Render(s domain.Snapshot) (domain.Document, error) {
	if s.Date == "" {
		return domain.Document{}, &domain.RenderError{Err: errors.New("snapshot has no date")}
	}
	content, err := e.Document(s)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		Date:    s.Date,
		Path:    DocumentPath(s.Date),
		Content: content,
		Entries: s.Len(),
	}, nil
}

type indexOption struct {
	Date     string
	Path     string
	Selected bool
}

type indexData struct {
	GeneratedAt string
	Dates       []indexOption
	InitialSrc  template.URL
}

// Index renders the navigation document over dates. Dates are de-duplicated
// and sorted; the most recent is selected and loaded initially.
func (e *Emitter) Index(dates []string) ([]byte, error) {
	uniq := make(map[string]struct{}, len(dates))
	sorted := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(domain.DateLayout, d); err != nil {
			return nil, fmt.Errorf("index date %q: %w", d, err)
		}
		if _, ok := uniq[d]; ok {
			continue
		}
		uniq[d] = struct{}{}
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	data := indexData{
		GeneratedAt: domain.Now().Format(time.RFC3339),
		InitialSrc:  "about:blank",
	}
	for i, d := range sorted {
		opt := indexOption{Date: d, Path: DocumentPath(d), Selected: i == len(sorted)-1}
		data.Dates = append(data.Dates, opt)
		if opt.Selected {
			data.InitialSrc = template.URL(opt.Path)
		}
	}

	var buf bytes.Buffer
	if err := e.index.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute index template: %w", err)
	}
	return buf.Bytes(), nil
}

// DocumentPath returns the output-relative path of the document for date.
func DocumentPath(date string) string {
	return MapsDir + "/map_" + date + ".html"
}

// DefaultDate returns the date an index over dates selects initially.
func DefaultDate(dates []string) (string, error) {
	if len(dates) == 0 {
		return "", errors.New("no dates")
	}
	latest := dates[0]
	for _, d := range dates[1:] {
		if d > latest {
			latest = d
		}
	}
	return latest, nil
}

func levelLabels() []string {
	labels := make([]string, 0, int(domain.MaxLevel)+1)
	for l := domain.LevelNoData; l <= domain.MaxLevel; l++ {
		labels = append(labels, l.Label())
	}
	return labels
}
