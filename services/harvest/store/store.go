package store

import (
	"context"
	"fmt"

	"stackharvest/lib/scrapers/stackoverflow"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/harvest/store")

// Store keeps harvested records in two collections, `questions` keyed
// by question id and `answers` keyed by answer id. All writes are
// upserts, so replaying a batch never duplicates rows.
type Store struct {
	questions *mongo.Collection
	answers   *mongo.Collection
}

func New(db *mongo.Database) Store {
	return Store{
		questions: db.Collection("questions"),
		answers:   db.Collection("answers"),
	}
}

func (s Store) Drop(ctx context.Context) error {
	if err := s.questions.Drop(ctx); err != nil {
		return fmt.Errorf("drop questions: %w", err)
	}
	if err := s.answers.Drop(ctx); err != nil {
		return fmt.Errorf("drop answers: %w", err)
	}
	return nil
}

func (s Store) UpsertQuestions(ctx context.Context, questions []stackoverflow.Question) (int64, error) {
	ctx, span := tracer.Start(ctx, "store:UpsertQuestions")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(questions)))

	if len(questions) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, len(questions))
	for i, q := range questions {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": q.Id}).
			SetUpdate(bson.M{"$set": q}).
			SetUpsert(true)
	}
	res, err := s.questions.BulkWrite(ctx, models)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk write failed")
		return 0, err
	}
	return res.UpsertedCount, nil
}

func (s Store) UpsertAnswers(ctx context.Context, answers []stackoverflow.Answer) (int64, error) {
	ctx, span := tracer.Start(ctx, "store:UpsertAnswers")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(answers)))

	if len(answers) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, len(answers))
	for i, a := range answers {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": a.Id}).
			SetUpdate(bson.M{"$set": a}).
			SetUpsert(true)
	}
	res, err := s.answers.BulkWrite(ctx, models)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk write failed")
		return 0, err
	}
	return res.UpsertedCount, nil
}
