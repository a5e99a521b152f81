// Package mongo stores one document per day, using the date as _id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"milkbook/internal/core"
	"milkbook/internal/records"
)

const (
	DefaultDatabase   = "milkbook"
	DefaultCollection = "milk_data"
)

type Config struct {
	URI        string
	Database   string
	Collection string
}

// document is the stored shape of a DailyRecord.
type document struct {
	Date      string    `bson:"_id"`
	Morning   float64   `bson:"morning"`
	Evening   float64   `bson:"evening"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ records.Store   = (*Store)(nil)
	_ records.Remover = (*Store)(nil)
	_ records.Pinger  = (*Store)(nil)
)

// Open connects to the deployment and verifies it answers a ping.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger.With("component", "storage.mongo"),
		now:    time.Now,
	}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Fetch implements records.Fetcher
func (s *Store) Fetch(ctx context.Context, dates []string) (map[string]records.Quantities, error) {
	out := make(map[string]records.Quantities, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": dates}})
	if err != nil {
		return nil, fmt.Errorf("find milk data: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode milk data: %w", err)
	}
	for _, d := range docs {
		out[d.Date] = records.Quantities{Morning: d.Morning, Evening: d.Evening}
	}
	return out, nil
}

// Upsert implements records.Upserter with one unordered bulk write.
func (s *Store) Upsert(ctx context.Context, recs []core.DailyRecord) (records.UpsertStats, error) {
	if len(recs) == 0 {
		return records.UpsertStats{}, nil
	}
	models, err := upsertModels(recs, s.now())
	if err != nil {
		return records.UpsertStats{}, err
	}

	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return records.UpsertStats{}, fmt.Errorf("bulk upsert milk data: %w", err)
	}

	stats := records.UpsertStats{
		Updated:  int(res.MatchedCount),
		Appended: int(res.UpsertedCount),
	}
	s.logger.DebugContext(ctx, "Milk records saved to MongoDB",
		"updated", stats.Updated,
		"appended", stats.Appended)
	return stats, nil
}

// Remove implements records.Remover
func (s *Store) Remove(ctx context.Context, dates []string) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": dates}})
	if err != nil {
		return 0, fmt.Errorf("delete milk data: %w", err)
	}
	return int(res.DeletedCount), nil
}

// upsertModels builds one upsert per distinct date. Repeated dates keep the
// last values so the unordered bulk write never races on the same _id.
func upsertModels(recs []core.DailyRecord, now time.Time) ([]mongo.WriteModel, error) {
	latest := make(map[string]core.DailyRecord, len(recs))
	order := make([]string, 0, len(recs))
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, ok := latest[r.Date]; !ok {
			order = append(order, r.Date)
		}
		latest[r.Date] = r
	}

	models := make([]mongo.WriteModel, 0, len(order))
	for _, date := range order {
		r := latest[date]
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": date}).
			SetUpdate(bson.M{"$set": bson.M{
				"morning":    r.Morning,
				"evening":    r.Evening,
				"updated_at": now,
			}}).
			SetUpsert(true))
	}
	return models, nil
}
