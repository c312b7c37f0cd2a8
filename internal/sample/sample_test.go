package sample

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pollen-map/internal/adapter/source"
	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/geo"
)

var testEnd = time.Date(2025, 3, 23, 0, 0, 0, 0, time.UTC)

func TestGenerate_Shape(t *testing.T) {
	rows, err := Generate(geo.Default().Cities(), Options{Cities: 5, Days: 7, End: testEnd, Seed: 42})
	require.NoError(t, err)
	require.Len(t, rows, 35)

	assert.Equal(t, "2025-03-17", rows[0].Date)
	assert.Equal(t, "2025-03-23", rows[len(rows)-1].Date)

	cities := map[string]struct{}{}
	for _, r := range rows {
		cities[r.City] = struct{}{}
		_, known := domain.ParseLevel(r.Level)
		assert.True(t, known, "level %q", r.Level)
	}
	assert.Len(t, cities, 5)
}

func TestGenerate_Deterministic(t *testing.T) {
	table := geo.Default().Cities()
	a, err := Generate(table, Options{Cities: 3, Days: 10, End: testEnd, Seed: 7})
	require.NoError(t, err)
	b, err := Generate(table, Options{Cities: 3, Days: 10, End: testEnd, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Generate(table, Options{Cities: 3, Days: 10, End: testEnd, Seed: 8})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerate_ClampsCities(t *testing.T) {
	table := geo.Default().Cities()[:2]
	rows, err := Generate(table, Options{Cities: 10, Days: 1, End: testEnd})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGenerate_InvalidOptions(t *testing.T) {
	_, err := Generate(geo.Default().Cities(), Options{Cities: 0, Days: 3})
	assert.Error(t, err)
	_, err = Generate(nil, Options{Cities: 1, Days: 1})
	assert.Error(t, err)
}

func TestWriteCSV_ReadsBack(t *testing.T) {
	rows, err := Generate(geo.Default().Cities(), Options{Cities: 4, Days: 3, End: testEnd, Seed: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\ufeff日期,")))

	back, err := source.ParseCSV(&buf)
	require.NoError(t, err)
	require.Len(t, back, len(rows))
	for i := range rows {
		assert.Equal(t, rows[i].City, back[i].City)
		assert.Equal(t, rows[i].Date, back[i].Date)
		assert.Equal(t, rows[i].Level, back[i].Level)
		assert.Equal(t, rows[i].CityCode, back[i].CityCode)
	}
}

func TestGenerate_NormalizesCleanly(t *testing.T) {
	table := geo.Default()
	rows, err := Generate(table.Cities(), Options{Cities: 49, Days: 2, End: testEnd, Seed: 3})
	require.NoError(t, err)

	res := domain.NormalizeRows(rows, table)
	assert.Empty(t, res.Warnings)
	assert.Len(t, res.Rows, len(rows))
}
