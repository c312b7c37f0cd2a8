// Package source reads raw measurement tables from CSV, JSON array and
// JSON-lines files.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

// Format identifies an input encoding.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
	FormatJSONLines Format = "jsonl"
)

// column names accepted for each MeasurementRow field. The scraper has
// written Chinese headers, English headers and the site's raw JSON keys.
var columnAliases = map[string][]string{
	"date":      {"日期", "date", "addtime", "add_time"},
	"city":      {"城市", "city", "city_name", "cityname"},
	"level":     {"花粉等级", "level", "pollen_level"},
	"message":   {"等级描述", "levelmsg", "level_msg", "message"},
	"city_code": {"城市代码", "city_code", "citycode", "code"},
}

var fieldByColumn = func() map[string]string {
	m := make(map[string]string)
	for field, names := range columnAliases {
		for _, n := range names {
			m[n] = field
		}
	}
	return m
}()

var errMissingColumn = errors.New("missing required column")

// File reads rows from a single file on disk. It implements
// pipeline.RowSource.
type File struct {
	path   string
	format Format
}

// NewFile returns a source for path. An empty format is detected from the
// file extension.
func NewFile(path string, format Format) (*File, error) {
	if format == "" {
		var err error
		format, err = DetectFormat(path)
		if err != nil {
			return nil, err
		}
	}
	return &File{path: path, format: format}, nil
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONLines, nil
	default:
		return "", fmt.Errorf("unsupported input extension %q", filepath.Ext(path))
	}
}

// ReadRows reads the whole file.
func (f *File) ReadRows(ctx context.Context) ([]domain.MeasurementRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer fh.Close()

	rows, err := Parse(fh, f.format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(f.path), err)
	}
	return rows, nil
}

// Parse decodes r in the given format.
func Parse(r io.Reader, format Format) ([]domain.MeasurementRow, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatJSON:
		return ParseJSON(r)
	case FormatJSONLines:
		return ParseJSONLines(r)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ParseCSV decodes a CSV table with a header row. A UTF-8 byte order mark is
// tolerated. Unknown columns are ignored; a table must have a date column and
// a city or city code column.
func ParseCSV(r io.Reader) ([]domain.MeasurementRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int)
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		field, ok := fieldByColumn[normalizeColumn(name)]
		if !ok {
			continue
		}
		if _, dup := cols[field]; !dup {
			cols[field] = i
		}
	}
	if err := requireColumns(cols); err != nil {
		return nil, err
	}

	var rows []domain.MeasurementRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if blankRecord(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, domain.MeasurementRow{
			Date:     cell(rec, cols, "date"),
			City:     cell(rec, cols, "city"),
			CityCode: cell(rec, cols, "city_code"),
			Level:    cell(rec, cols, "level"),
			Message:  cell(rec, cols, "message"),
			Line:     line,
		})
	}
	return rows, nil
}

// ParseJSON decodes a JSON array of row objects.
func ParseJSON(r io.Reader) ([]domain.MeasurementRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	rows := make([]domain.MeasurementRow, 0, len(objs))
	for i, obj := range objs {
		rows = append(rows, rowFromObject(obj, i+1))
	}
	return rows, nil
}

// ParseJSONLines decodes one row object per line. Blank lines are skipped.
func ParseJSONLines(r io.Reader) ([]domain.MeasurementRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json lines: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	var rows []domain.MeasurementRow
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		rows = append(rows, rowFromObject(obj, i+1))
	}
	return rows, nil
}

func rowFromObject(obj map[string]any, line int) domain.MeasurementRow {
	byKey := make(map[string]any, len(obj))
	for k, v := range obj {
		byKey[normalizeColumn(k)] = v
	}
	// Aliases are tried in order so a row carrying both "date" and "addTime"
	// resolves the same way every time.
	value := func(field string) string {
		for _, name := range columnAliases[field] {
			if v, ok := byKey[name]; ok {
				if s := stringify(v); s != "" {
					return s
				}
			}
		}
		return ""
	}
	return domain.MeasurementRow{
		Date:     value("date"),
		City:     value("city"),
		CityCode: value("city_code"),
		Level:    value("level"),
		Message:  value("message"),
		Line:     line,
	}
}

func requireColumns(cols map[string]int) error {
	if _, ok := cols["date"]; !ok {
		return fmt.Errorf("%w: date", errMissingColumn)
	}
	_, hasCity := cols["city"]
	_, hasCode := cols["city_code"]
	if !hasCity && !hasCode {
		return fmt.Errorf("%w: city", errMissingColumn)
	}
	return nil
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cell(rec []string, cols map[string]int, field string) string {
	i, ok := cols[field]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
