// Package mongo stores pulses as documents keyed by pulse ID.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"pulse_etl/internal/domain"
)

var ErrPulseNotFound = errors.New("pulse not found")

type pulseDocument struct {
	ID          string     `bson:"_id"`
	Name        string     `bson:"name"`
	Description string     `bson:"description"`
	AuthorName  string     `bson:"author_name"`
	Tags        []string   `bson:"tags"`
	Created     *time.Time `bson:"created"`
	Modified    *time.Time `bson:"modified"`
	References  []string   `bson:"references"`
	LoadedAt    time.Time  `bson:"loaded_at"`

	// BSON datetimes keep milliseconds; OTX sends microseconds.
	CreatedExact  string `bson:"created_exact,omitempty"`
	ModifiedExact string `bson:"modified_exact,omitempty"`
}

type runDocument struct {
	RunID         string    `bson:"_id"`
	SourceID      string    `bson:"source_id"`
	StartedAt     time.Time `bson:"started_at"`
	DurationMS    int64     `bson:"duration_ms"`
	Pages         int       `bson:"pages"`
	Fetched       int       `bson:"fetched"`
	Normalized    int       `bson:"normalized"`
	Loaded        int       `bson:"loaded"`
	Created       int       `bson:"created"`
	Updated       int       `bson:"updated"`
	Invalid       int       `bson:"invalid"`
	StorageFailed int       `bson:"storage_failed"`
	Failed        int       `bson:"failed"`
	Published     int       `bson:"published"`
	PublishFailed int       `bson:"publish_failed"`
	Error         string    `bson:"error,omitempty"`
}

// Connect opens a client and verifies the primary is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// PulseStore writes pulses to one collection and run summaries to
// "<collection>_runs".
type PulseStore struct {
	pulses *mongo.Collection
	runs   *mongo.Collection
}

func NewPulseStore(db *mongo.Database, collection string) *PulseStore {
	return &PulseStore{
		pulses: db.Collection(collection),
		runs:   db.Collection(collection + "_runs"),
	}
}

// Upsert replaces the whole document with _id = pulse.ID.
func (s *PulseStore) Upsert(ctx context.Context, pulse *domain.Pulse) (bool, error) {
	doc := pulseDocument{
		ID:          pulse.ID,
		Name:        pulse.Name,
		Description: pulse.Description,
		AuthorName:  pulse.AuthorName,
		Tags:        nonNil(pulse.Tags),
		Created:     pulse.Created,
		Modified:    pulse.Modified,
		References:  nonNil(pulse.References),
		LoadedAt:    time.Now().UTC(),

		CreatedExact:  exactTime(pulse.Created),
		ModifiedExact: exactTime(pulse.Modified),
	}

	res, err := s.pulses.ReplaceOne(ctx,
		bson.M{"_id": pulse.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return false, err
	}

	return res.UpsertedCount > 0, nil
}

func (s *PulseStore) Get(ctx context.Context, id string) (*domain.Pulse, error) {
	var doc pulseDocument
	err := s.pulses.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrPulseNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return &domain.Pulse{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		AuthorName:  doc.AuthorName,
		Tags:        doc.Tags,
		Created:     restoreTime(doc.Created, doc.CreatedExact),
		Modified:    restoreTime(doc.Modified, doc.ModifiedExact),
		References:  doc.References,
	}, nil
}

func (s *PulseStore) Count(ctx context.Context) (int64, error) {
	return s.pulses.CountDocuments(ctx, bson.M{})
}

// RecordRun appends one run summary.
func (s *PulseStore) RecordRun(ctx context.Context, stats *domain.RunStats) error {
	_, err := s.runs.InsertOne(ctx, newRunDocument(stats))
	return err
}

func newRunDocument(stats *domain.RunStats) runDocument {
	return runDocument{
		RunID:         stats.RunID,
		SourceID:      stats.SourceID,
		StartedAt:     stats.StartedAt,
		DurationMS:    stats.Duration.Milliseconds(),
		Pages:         stats.Pages,
		Fetched:       stats.Fetched,
		Normalized:    stats.Normalized,
		Loaded:        stats.Loaded,
		Created:       stats.Created,
		Updated:       stats.Updated,
		Invalid:       stats.Invalid,
		StorageFailed: stats.StorageFailed,
		Failed:        stats.Failed,
		Published:     stats.Published,
		PublishFailed: stats.PublishFailed,
		Error:         stats.Err,
	}
}

func exactTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// restoreTime prefers the full-precision copy over the BSON datetime.
func restoreTime(stored *time.Time, exact string) *time.Time {
	if exact != "" {
		if t, err := time.Parse(time.RFC3339Nano, exact); err == nil {
			return &t
		}
	}
	if stored == nil {
		return nil
	}
	t := stored.UTC()
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
