package repair

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/observability"
	"github.com/couchcryptid/pollen-map/internal/render"
)

// Result describes one repaired document.
type Result struct {
	// Date is the recovered or supplied date; empty when unknown.
	Date       string
	Recovered  int
	Duplicates int
	Skipped    int
	// Dropped counts entries without coordinates that the city table could
	// not place.
	Dropped  int
	Tier     string
	Snapshot domain.Snapshot
	Document []byte
}

// Repairer re-emits damaged documents through the regular document emitter.
type Repairer struct {
	emitter  *render.Emitter
	resolver domain.CityResolver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRepairer creates a Repairer. resolver may be nil, in which case entries
// without coordinates are dropped.
func NewRepairer(emitter *render.Emitter, resolver domain.CityResolver, logger *slog.Logger, metrics *observability.Metrics) *Repairer {
	return &Repairer{
		emitter:  emitter,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
	}
}

// Repair recovers the payload of text and renders a corrected document.
func (r *Repairer) Repair(text string) (Result, error) {
	return r.RepairDated(text, "")
}

// RepairDated is Repair with a fallback date used when the document title
// carries none.
func (r *Repairer) RepairDated(text, fallbackDate string) (Result, error) {
	ex, err := Extract(text)
	res := Result{
		Date:       ex.Date,
		Recovered:  len(ex.Items),
		Duplicates: ex.Duplicates,
		Skipped:    ex.Skipped,
		Tier:       ex.Tier,
	}
	if err != nil {
		r.metrics.RepairOutcomes.WithLabelValues("failed", res.Tier).Inc()
		return res, err
	}
	if res.Date == "" && fallbackDate != "" {
		if _, perr := domain.ParseDate(fallbackDate); perr == nil {
			res.Date = fallbackDate
		}
	}

	snap := domain.Snapshot{Date: res.Date, Entries: make([]domain.Entry, 0, len(ex.Items))}
	for _, it := range ex.Items {
		city, ok := r.place(it)
		if !ok {
			res.Dropped++
			r.logger.Warn("dropping entry without coordinates", "city", it.Name, "date", res.Date)
			continue
		}
		snap.Entries = append(snap.Entries, domain.Entry{City: city, Level: it.Level})
	}
	if snap.Empty() {
		r.metrics.RepairOutcomes.WithLabelValues("failed", res.Tier).Inc()
		return res, &domain.ExtractionError{
			Recovered: 0,
			Err:       fmt.Errorf("%w: %d entries lacked coordinates", domain.ErrNoEntries, res.Dropped),
		}
	}

	doc, err := r.emitter.Document(snap)
	if err != nil {
		r.metrics.RepairOutcomes.WithLabelValues("failed", res.Tier).Inc()
		return res, fmt.Errorf("re-emit document: %w", err)
	}

	res.Snapshot = snap
	res.Document = doc
	r.metrics.RepairOutcomes.WithLabelValues("repaired", res.Tier).Inc()
	return res, nil
}

// place builds the city for an item. The document's own name and coordinates
// win; the table fills the identifier and any missing position.
func (r *Repairer) place(it Item) (domain.CanonicalCity, bool) {
	city := domain.CanonicalCity{ID: it.Name, Name: it.Name}
	if r.resolver != nil {
		if c, ok := r.resolver.Resolve(it.Name); ok {
			city.ID, city.Code, city.Province = c.ID, c.Code, c.Province
			city.Lon, city.Lat = c.Lon, c.Lat
		}
	}
	if it.HasCoords {
		city.Lon, city.Lat = it.Lon, it.Lat
	}
	return city, city.HasCoordinates()
}

// IsExtractionFailure reports whether err means nothing could be recovered.
func IsExtractionFailure(err error) bool {
	var exErr *domain.ExtractionError
	return errors.As(err, &exErr)
}
