package repair

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/geo"
	"github.com/couchcryptid/pollen-map/internal/observability"
	"github.com/couchcryptid/pollen-map/internal/render"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepairer(t *testing.T) (*Repairer, *render.Emitter, *observability.Metrics) {
	t.Helper()
	emitter, err := render.NewEmitter(render.Options{})
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	return NewRepairer(emitter, geo.Default(), discardLogger(), metrics), emitter, metrics
}

func testSnapshot(t *testing.T) domain.Snapshot {
	t.Helper()
	table := geo.Default()
	snap := domain.Snapshot{Date: "2025-03-20"}
	for i, name := range []string{"北京", "上海", "广州", "成都", "乌鲁木齐"} {
		c, ok := table.Resolve(name)
		require.True(t, ok)
		snap.Entries = append(snap.Entries, domain.Entry{City: c, Level: domain.Level(i * 2)})
	}
	return snap
}

type pair struct {
	name  string
	level domain.Level
}

func pairs(s domain.Snapshot) map[pair]struct{} {
	out := make(map[pair]struct{}, len(s.Entries))
	for _, e := range s.Entries {
		out[pair{e.City.Name, e.Level}] = struct{}{}
	}
	return out
}

func TestRepair_RoundTrip(t *testing.T) {
	r, emitter, metrics := newTestRepairer(t)
	snap := testSnapshot(t)
	doc, err := emitter.Document(snap)
	require.NoError(t, err)

	res, err := r.Repair(string(doc))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-20", res.Date)
	assert.Equal(t, TierStrict, res.Tier)
	assert.Equal(t, len(snap.Entries), res.Recovered)
	assert.Equal(t, pairs(snap), pairs(res.Snapshot))
	for i, e := range res.Snapshot.Entries {
		assert.Equal(t, snap.Entries[i].City.ID, e.City.ID)
		assert.Equal(t, snap.Entries[i].City.Lon, e.City.Lon)
		assert.Equal(t, snap.Entries[i].City.Lat, e.City.Lat)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RepairOutcomes.WithLabelValues("repaired", TierStrict)))

	again, err := r.Repair(string(res.Document))
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot, again.Snapshot)
}

func TestRepair_Truncated(t *testing.T) {
	r, emitter, _ := newTestRepairer(t)
	doc, err := emitter.Document(testSnapshot(t))
	require.NoError(t, err)

	// Cut the document in the middle of the third entry's value.
	text := string(doc)
	cut := strings.Index(text, `{"name": "广州"`)
	require.Positive(t, cut)
	text = text[:cut+len(`{"name": "广州", "value": [113.26`)]

	res, err := r.Repair(text)
	require.NoError(t, err)

	assert.Equal(t, TierTolerant, res.Tier)
	assert.Equal(t, 2, res.Recovered)
	require.Len(t, res.Snapshot.Entries, 2)
	assert.Equal(t, "北京", res.Snapshot.Entries[0].City.Name)
	assert.Equal(t, "上海", res.Snapshot.Entries[1].City.Name)
	assert.Contains(t, string(res.Document), `"data": [`)
}

func TestRepair_NothingRecovered(t *testing.T) {
	r, _, metrics := newTestRepairer(t)

	res, err := r.Repair("<html><title>全国花粉分布地图 - 2025-03-20</title></html>")

	require.Error(t, err)
	assert.True(t, IsExtractionFailure(err))
	assert.ErrorIs(t, err, domain.ErrNoEntries)
	assert.Zero(t, res.Recovered)
	assert.Nil(t, res.Document)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RepairOutcomes.WithLabelValues("failed", TierNone)))
}

func TestRepair_FillsCoordinatesFromTable(t *testing.T) {
	r, _, _ := newTestRepairer(t)

	res, err := r.Repair(`"data": [{name: '北京市', value: 4}, {name: '亚特兰蒂斯', value: 1}]`)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Snapshot.Entries, 1)
	e := res.Snapshot.Entries[0]
	assert.Equal(t, "北京市", e.City.Name, "document names are kept verbatim")
	assert.Equal(t, "101010100", e.City.ID)
	assert.Equal(t, 116.4074, e.City.Lon)
	assert.Equal(t, domain.Level(4), e.Level)
}

func TestRepair_AllUnplaceable(t *testing.T) {
	emitter, err := render.NewEmitter(render.Options{})
	require.NoError(t, err)
	r := NewRepairer(emitter, nil, discardLogger(), observability.NewMetricsForTesting())

	res, err := r.Repair(`"data": [{"name": "北京", "value": 4}]`)

	var exErr *domain.ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Zero(t, exErr.Recovered)
	assert.Equal(t, 1, res.Dropped)
}

func TestRepair_UnknownDate(t *testing.T) {
	r, _, _ := newTestRepairer(t)
	text := `"data": [{"name": "北京", "value": [116.4, 39.9, 2]}]`

	res, err := r.Repair(text)
	require.NoError(t, err)
	assert.Empty(t, res.Date)
	assert.Contains(t, string(res.Document), render.UnknownDate)

	res, err = r.RepairDated(text, "2025-03-21")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-21", res.Date)
	assert.Contains(t, string(res.Document), "全国花粉分布地图 - 2025-03-21")
}

type memWriter map[string][]byte

func (m memWriter) WriteFile(path string, data []byte) error {
	m[path] = data
	return nil
}

func TestRepairDir(t *testing.T) {
	r, emitter, _ := newTestRepairer(t)
	dir := t.TempDir()

	good, err := emitter.Document(testSnapshot(t))
	require.NoError(t, err)
	goodPath := filepath.Join(dir, "map_2025-03-20.html")
	badPath := filepath.Join(dir, "map_2025-03-21.html")
	undatedPath := filepath.Join(dir, "map_2025-03-22.html")
	require.NoError(t, os.WriteFile(goodPath, good, 0o600))
	require.NoError(t, os.WriteFile(badPath, []byte("<html>broken</html>"), 0o600))
	require.NoError(t, os.WriteFile(undatedPath, []byte(`"data": [{"name": "上海", "value": 3}]`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("ignored"), 0o600))

	w := memWriter{}
	report, err := r.RepairDir(context.Background(), dir, w)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Repaired)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Files, 3)
	assert.Equal(t, badPath, report.Files[1].Path)

	var exErr *domain.ExtractionError
	require.True(t, errors.As(report.Files[1].Err, &exErr))
	assert.Equal(t, "map_2025-03-21.html", exErr.Source)

	assert.Contains(t, w, goodPath)
	assert.NotContains(t, w, badPath)
	assert.Equal(t, "2025-03-22", report.Files[2].Result.Date, "date falls back to the file name")
	assert.Contains(t, string(w[undatedPath]), "全国花粉分布地图 - 2025-03-22")
}

func TestRepairDir_DryRun(t *testing.T) {
	r, _, _ := newTestRepairer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "map_2025-03-20.html")
	orig := []byte(`"data": [{"name": "上海", "value": 3}]`)
	require.NoError(t, os.WriteFile(path, orig, 0o600))

	report, err := r.RepairDir(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Repaired)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, data)
}
