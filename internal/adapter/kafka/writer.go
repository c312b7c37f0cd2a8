package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/pollen-map/internal/domain"
)

// Publisher produces one message per snapshot to a Kafka topic.
// It implements pipeline.SnapshotPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the snapshot topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSnapshots serializes every snapshot and sends them in a single
// WriteMessages call.
func (p *Publisher) PublishSnapshots(ctx context.Context, runID string, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	publishedAt := domain.Now()
	msgs := make([]kafkago.Message, len(snapshots))
	for i := range snapshots {
		msg, err := serializeToMessage(runID, publishedAt, snapshots[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write snapshot messages: %w", err)
	}
	p.logger.Debug("snapshots published", "run_id", runID, "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// snapshotMessage is the wire form of one published snapshot.
type snapshotMessage struct {
	RunID       string         `json:"run_id"`
	Date        string         `json:"date"`
	PublishedAt time.Time      `json:"published_at"`
	Entries     []messageEntry `json:"entries"`
}

type messageEntry struct {
	City   string  `json:"city"`
	CityID string  `json:"city_id"`
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Level  int     `json:"level"`
	Label  string  `json:"label"`
}

// serializeToMessage marshals a Snapshot into a Kafka message keyed by date.
func serializeToMessage(runID string, publishedAt time.Time, snap domain.Snapshot) (kafkago.Message, error) {
	body := snapshotMessage{
		RunID:       runID,
		Date:        snap.Date,
		PublishedAt: publishedAt,
		Entries:     make([]messageEntry, 0, len(snap.Entries)),
	}
	for _, e := range snap.Entries {
		body.Entries = append(body.Entries, messageEntry{
			City:   e.City.Name,
			CityID: e.City.ID,
			Lon:    e.City.Lon,
			Lat:    e.City.Lat,
			Level:  int(e.Level),
			Label:  e.Level.Label(),
		})
	}
	data, err := json.Marshal(body)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot %s: %w", snap.Date, err)
	}
	return kafkago.Message{
		Key:   []byte(snap.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "date", Value: []byte(snap.Date)},
			{Key: "entries", Value: []byte(strconv.Itoa(len(snap.Entries)))},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
