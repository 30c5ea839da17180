package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SampleDocument is one persisted memory sample.
type SampleDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp     time.Time          `bson:"timestamp" json:"timestamp"`
	Host          string             `bson:"host,omitempty" json:"host,omitempty"`
	ResidentBytes int64              `bson:"resident_bytes" json:"resident_bytes"`
	LimitBytes    int64              `bson:"limit_bytes" json:"limit_bytes"`
	Usage         float64            `bson:"usage" json:"usage"`
	Threshold     float64            `bson:"threshold" json:"threshold"`
	// Cleaned is set when the sample crossed the threshold and triggered cleanup.
	Cleaned bool `bson:"cleaned" json:"cleaned"`
}

// SampleQueryOptions provides options for querying samples.
type SampleQueryOptions struct {
	Host        string
	CleanedOnly bool
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Skip        int
}

func (o SampleQueryOptions) filter() bson.M {
	filter := bson.M{}
	if o.Host != "" {
		filter["host"] = o.Host
	}
	if o.CleanedOnly {
		filter["cleaned"] = true
	}
	if o.StartTime != nil || o.EndTime != nil {
		timeFilter := bson.M{}
		if o.StartTime != nil {
			timeFilter["$gte"] = *o.StartTime
		}
		if o.EndTime != nil {
			timeFilter["$lte"] = *o.EndTime
		}
		filter["timestamp"] = timeFilter
	}
	return filter
}

// SamplesRepository stores memory samples.
type SamplesRepository struct {
	collection *mongo.Collection
}

// NewSamplesRepository creates a new samples repository.
func NewSamplesRepository(db *MongoDB) *SamplesRepository {
	return &SamplesRepository{
		collection: db.Samples,
	}
}

// Create inserts one sample.
func (r *SamplesRepository) Create(ctx context.Context, sample *SampleDocument) error {
	prepareSample(sample)
	_, err := r.collection.InsertOne(ctx, sample)
	return err
}

// CreateMany inserts samples in bulk.
func (r *SamplesRepository) CreateMany(ctx context.Context, samples []*SampleDocument) error {
	if len(samples) == 0 {
		return nil
	}

	docs := make([]interface{}, len(samples))
	for i, sample := range samples {
		prepareSample(sample)
		docs[i] = sample
	}

	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

// Query returns samples newest first.
func (r *SamplesRepository) Query(ctx context.Context, opts SampleQueryOptions) ([]*SampleDocument, error) {
	findOptions := options.Find().SetSort(bson.M{"timestamp": -1})
	if opts.Limit > 0 {
		findOptions.SetLimit(int64(opts.Limit))
	}
	if opts.Skip > 0 {
		findOptions.SetSkip(int64(opts.Skip))
	}

	cursor, err := r.collection.Find(ctx, opts.filter(), findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var samples []*SampleDocument
	if err := cursor.All(ctx, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// Count returns the number of samples matching opts.
func (r *SamplesRepository) Count(ctx context.Context, opts SampleQueryOptions) (int64, error) {
	return r.collection.CountDocuments(ctx, opts.filter())
}

func prepareSample(sample *SampleDocument) {
	if sample.ID.IsZero() {
		sample.ID = primitive.NewObjectID()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
}
