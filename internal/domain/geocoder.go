package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder looks up coordinates for city records that lack them.
type Geocoder interface {
	// ForwardGeocode converts a city name and province to coordinates.
	ForwardGeocode(ctx context.Context, name, province string) (GeocodingResult, error)
}
