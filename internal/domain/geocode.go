package domain

import (
	"context"
	"log/slog"
)

// GeocodeSummary counts the outcomes of FillCoordinates.
type GeocodeSummary struct {
	Filled  int
	Skipped int
	Failed  int
}

// FillCoordinates forward-geocodes every city without coordinates. Cities
// that already carry a position are left untouched. A failed lookup leaves
// the city unchanged and is logged (graceful degradation).
func FillCoordinates(ctx context.Context, cities []CanonicalCity, geocoder Geocoder, logger *slog.Logger) ([]CanonicalCity, GeocodeSummary) {
	out := make([]CanonicalCity, len(cities))
	copy(out, cities)

	var sum GeocodeSummary
	if geocoder == nil {
		sum.Skipped = len(out)
		return out, sum
	}

	for i, c := range out {
		if c.HasCoordinates() || c.Name == "" {
			sum.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			sum.Skipped += len(out) - i
			break
		}

		result, err := geocoder.ForwardGeocode(ctx, c.Name, c.Province)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"city", c.Name,
				"province", c.Province,
				"error", err,
			)
			sum.Failed++
			continue
		}
		if result.Lat == 0 && result.Lon == 0 {
			sum.Failed++
			continue
		}
		out[i].Lat = result.Lat
		out[i].Lon = result.Lon
		sum.Filled++
	}
	return out, sum
}
