package report

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// StatsReporter is the external statistics reporter contract from
// spec.md §1: the core never requires one, but hands its Summary to
// whichever implementation the caller injected, best-effort.
type StatsReporter interface {
	Report(ctx context.Context, s *Summary) error
}

// NoopReporter is the default StatsReporter when none is configured.
type NoopReporter struct{}

func (NoopReporter) Report(context.Context, *Summary) error { return nil }

// MongoReporter appends one document per run to a collection, grounded on
// the teacher's database.MongoLogger (database/mongo_logger.go): same
// context-with-timeout-then-InsertOne shape. This is not the core's own
// persisted state (spec.md §6.2 still forbids that) — losing this sink
// loses no in-flight work.
type MongoReporter struct {
	db         *mongo.Database
	collection string
}

func NewMongoReporter(db *mongo.Database, collection string) *MongoReporter {
	if collection == "" {
		collection = "harvest_runs"
	}
	return &MongoReporter{db: db, collection: collection}
}

func (r *MongoReporter) Report(ctx context.Context, s *Summary) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := bson.M{
		"run_id":         s.RunID,
		"started":        s.Started,
		"finished":       s.Finished,
		"targeted_total": s.TargetedTotal,
		"succeeded":      s.Succeeded,
		"failed":         s.Failed,
		"success_ratio":  s.SuccessRatio(),
		"sessions":       sessionsToBSON(s.Sessions),
	}

	_, err := r.db.Collection(r.collection).InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("report: insert run summary: %w", err)
	}
	return nil
}

func sessionsToBSON(sessions map[string]*SessionStats) bson.M {
	out := bson.M{}
	for name, s := range sessions {
		byKind := bson.M{}
		for kind, c := range s.ByKind {
			byKind[kind] = bson.M{"succeeded": c.Succeeded, "failed": c.Failed}
		}
		out[name] = bson.M{
			"bytes_consumed": s.BytesConsumed,
			"messages_seen":  s.MessagesSeen,
			"by_kind":        byKind,
		}
	}
	return out
}
