package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stackharvest/lib/scrapers/stackoverflow"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/harvest")

// DefaultQuestionDelay is the politeness pause between question page
// fetches; up to the same amount of uniform jitter is added on top.
const DefaultQuestionDelay = 600 * time.Millisecond

// Store persists harvested records keyed by their site-assigned ids.
// Upserts must be idempotent: replaying a batch may not produce
// duplicate rows, latest write wins.
type Store interface {
	Drop(ctx context.Context) error
	UpsertQuestions(ctx context.Context, questions []stackoverflow.Question) (int64, error)
	UpsertAnswers(ctx context.Context, answers []stackoverflow.Answer) (int64, error)
}

type Service struct {
	client *stackoverflow.Client
	store  Store
}

func NewService(client *stackoverflow.Client, store Store) Service {
	return Service{client: client, store: store}
}

type RunOptions struct {
	Questions stackoverflow.QuestionsOptions
	// drop both collections before harvesting
	Drop bool
	// keep questions whose API-reported score is not positive; by
	// default they are filtered out along with unanswered ones
	KeepLowScore bool
	// pause between question page fetches, 0 disables it
	QuestionDelay time.Duration
}

type RunReport struct {
	Pages             int
	QuestionsSeen     int
	QuestionsFiltered int
	QuestionsMarked   int
	QuestionsStored   int64
	AnswersStored     int64
	Duration          time.Duration
}

// Run drives one full harvest: pull question pages, scrape answers for
// every question worth keeping, and upsert both into the store batch
// by batch. A run that died halfway can be resumed from the last
// logged page since every write is keyed and replacing.
func (s Service) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	ctx, span := tracer.Start(ctx, "service:Run")
	defer span.End()

	start := time.Now()
	var report RunReport

	if opts.Drop {
		slog.WarnContext(ctx, "dropping question and answer collections")
		if err := s.store.Drop(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to drop collections")
			return report, fmt.Errorf("drop collections: %w", err)
		}
	}

	pager, err := s.client.Questions(opts.Questions)
	if err != nil {
		return report, err
	}

	for pager.Next(ctx) {
		report.Pages++
		if err := s.harvestBatch(ctx, &report, pager.Batch().Items, opts); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch failed")
			return report, err
		}
	}
	if err := pager.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pager failed")
		return report, err
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (s Service) harvestBatch(ctx context.Context, report *RunReport, items []stackoverflow.Question, opts RunOptions) error {
	ctx, span := tracer.Start(ctx, "service:harvestBatch")
	defer span.End()

	report.QuestionsSeen += len(items)

	// questions with no answers can't contribute snippets, and low
	// scored ones rarely hold anything worth keeping
	var kept []stackoverflow.Question
	for _, q := range items {
		if q.AnswerCount <= 0 {
			continue
		}
		if !opts.KeepLowScore && q.Score <= 0 {
			continue
		}
		kept = append(kept, q)
	}
	report.QuestionsFiltered += len(items) - len(kept)
	slog.InfoContext(
		ctx, "filtered question batch",
		"dropped", len(items)-len(kept),
		"kept", len(kept),
	)

	marked := map[int]bool{}
	var answers []stackoverflow.Answer
	for _, q := range kept {
		raw, err := s.client.Answers(ctx, q.Link)
		if err != nil {
			// surface which page blew up, a structural parse failure
			// aborts the whole run
			return fmt.Errorf("scrape question %s: %w", q.Link, err)
		}

		if len(raw) == 0 {
			marked[q.Id] = true
			report.QuestionsMarked++
			slog.DebugContext(ctx, "question has no quality answers", "question_id", q.Id)
			if opts.QuestionDelay > 0 {
				time.Sleep(opts.QuestionDelay + opts.QuestionDelay/4)
			}
			continue
		}

		for _, a := range raw {
			answers = append(answers, stackoverflow.Answer{RawAnswer: a, QuestionId: q.Id})
		}
		politePause(opts.QuestionDelay)
	}

	var toStore []stackoverflow.Question
	for _, q := range kept {
		if !marked[q.Id] {
			toStore = append(toStore, q)
		}
	}
	if len(marked) > 0 {
		slog.InfoContext(
			ctx, "removing questions with no quality answers",
			"removed", len(marked),
			"remaining", len(toStore),
		)
	}

	if len(toStore) > 0 {
		upserted, err := s.store.UpsertQuestions(ctx, toStore)
		if err != nil {
			return fmt.Errorf("upsert questions: %w", err)
		}
		report.QuestionsStored += upserted
	}
	if len(answers) > 0 {
		upserted, err := s.store.UpsertAnswers(ctx, answers)
		if err != nil {
			return fmt.Errorf("upsert answers: %w", err)
		}
		report.AnswersStored += upserted
	}

	slog.InfoContext(ctx, "stored batch", "questions", len(toStore), "answers", len(answers))
	return nil
}

// politePause sleeps for delay plus up to the same amount of uniform
// jitter, so page fetches don't land on the host at a fixed cadence.
func politePause(delay time.Duration) {
	if delay <= 0 {
		return
	}
	extra, err := random.IntRange(0, int(delay.Milliseconds())+1)
	if err != nil {
		extra = 0
	}
	time.Sleep(delay + time.Duration(extra)*time.Millisecond)
}
