package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

// payloadIndent is the indentation of entries inside the series block.
const payloadIndent = "      "

// EncodePayload serializes a snapshot as the scatter series data literal:
//
//	[{"name": "北京", "value": [116.4074, 39.9042, 3]}, ...]
//
// Entries keep snapshot order. The output is deterministic for a given
// snapshot.
func EncodePayload(s domain.Snapshot) ([]byte, error) {
	if len(s.Entries) == 0 {
		return []byte("[]"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, e := range s.Entries {
		if err := checkEntry(e); err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.City.Name, err)
		}
		// encoding/json escapes <, > and & so a name cannot close the script.
		name, err := json.Marshal(e.City.Name)
		if err != nil {
			return nil, fmt.Errorf("entry %d: encode name: %w", i, err)
		}
		buf.WriteString(payloadIndent)
		buf.WriteString(`{"name": `)
		buf.Write(name)
		buf.WriteString(`, "value": [`)
		buf.WriteString(formatCoord(e.City.Lon))
		buf.WriteString(", ")
		buf.WriteString(formatCoord(e.City.Lat))
		buf.WriteString(", ")
		buf.WriteString(strconv.Itoa(int(e.Level)))
		buf.WriteString("]}")
		if i < len(s.Entries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("    ]")
	return buf.Bytes(), nil
}

func checkEntry(e domain.Entry) error {
	if !e.Level.Valid() {
		return fmt.Errorf("level %d outside 0-%d", e.Level, domain.MaxLevel)
	}
	if e.City.Name == "" {
		return errors.New("empty city name")
	}
	for _, v := range []float64{e.City.Lon, e.City.Lat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite coordinate")
		}
	}
	if !e.City.HasCoordinates() {
		return errors.New("missing coordinates")
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
