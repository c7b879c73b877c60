package store

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"stackharvest/lib/mongoutil"
	"stackharvest/lib/scrapers/stackoverflow"
	"stackharvest/lib/telemetry"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
)

func setup(t testing.TB) (Store, context.Context) {
	if testing.Short() {
		t.Skip("skipping mongodb container test in short mode")
	}
	telemetry.SetupForTesting(t, "services/harvest/store")

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor:   wait.ForLog("Waiting for connections"),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := container.Terminate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatal(err)
	}

	db, cleanup, err := mongoutil.Open(ctx, mongoutil.Config{
		Uri:      fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		Database: "stackharvest_test",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cleanup)

	return New(db), ctx
}

func intPtr(v int) *int { return &v }

func testQuestion(id, score int) stackoverflow.Question {
	return stackoverflow.Question{
		Id:          id,
		Title:       fmt.Sprintf("question %d", id),
		Link:        fmt.Sprintf("https://stackoverflow.com/questions/%d", id),
		AnswerCount: 1,
		Score:       score,
		Tags:        []string{"c"},
		IsAnswered:  true,
	}
}

func testAnswer(id, questionId, score int) stackoverflow.Answer {
	return stackoverflow.Answer{
		RawAnswer: stackoverflow.RawAnswer{
			Id:             id,
			Snippets:       "int main(void) { return 0; }",
			Score:          score,
			Source:         fmt.Sprintf("https://stackoverflow.com/a/%d", id),
			AuthorId:       intPtr(26),
			AuthorUsername: "jon-skeet",
		},
		QuestionId: questionId,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store, ctx := setup(t)

	questions := []stackoverflow.Question{testQuestion(1, 5), testQuestion(2, 3)}
	answers := []stackoverflow.Answer{testAnswer(10, 1, 4), testAnswer(11, 2, 1)}

	upserted, err := store.UpsertQuestions(ctx, questions)
	require.NoError(t, err)
	require.Equal(t, int64(2), upserted)

	upserted, err = store.UpsertAnswers(ctx, answers)
	require.NoError(t, err)
	require.Equal(t, int64(2), upserted)

	// replaying the same batch may not insert anything new
	upserted, err = store.UpsertQuestions(ctx, questions)
	require.NoError(t, err)
	require.Zero(t, upserted)
	upserted, err = store.UpsertAnswers(ctx, answers)
	require.NoError(t, err)
	require.Zero(t, upserted)

	count, err := store.questions.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	count, err = store.answers.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestUpsertLatestWriteWins(t *testing.T) {
	store, ctx := setup(t)

	_, err := store.UpsertQuestions(ctx, []stackoverflow.Question{testQuestion(1, 5)})
	require.NoError(t, err)
	_, err = store.UpsertQuestions(ctx, []stackoverflow.Question{testQuestion(1, 99)})
	require.NoError(t, err)

	var got stackoverflow.Question
	err = store.questions.FindOne(ctx, bson.M{"_id": 1}).Decode(&got)
	require.NoError(t, err)
	require.Equal(t, 99, got.Score)
	require.Equal(t, 1, got.Id)
}

func TestAnswersKeepQuestionReference(t *testing.T) {
	store, ctx := setup(t)

	_, err := store.UpsertQuestions(ctx, []stackoverflow.Question{testQuestion(7, 2)})
	require.NoError(t, err)
	_, err = store.UpsertAnswers(ctx, []stackoverflow.Answer{testAnswer(70, 7, 3), testAnswer(71, 7, 1)})
	require.NoError(t, err)

	cursor, err := store.answers.Find(ctx, bson.M{"question_id": 7})
	require.NoError(t, err)
	var got []stackoverflow.Answer
	require.NoError(t, cursor.All(ctx, &got))
	require.Len(t, got, 2)
	for _, a := range got {
		require.Equal(t, 7, a.QuestionId)
		require.NotEmpty(t, a.Snippets)
	}
}

func TestUpsertEmptyBatch(t *testing.T) {
	store, ctx := setup(t)

	upserted, err := store.UpsertQuestions(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, upserted)
	upserted, err = store.UpsertAnswers(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, upserted)
}

func TestDrop(t *testing.T) {
	store, ctx := setup(t)

	_, err := store.UpsertQuestions(ctx, []stackoverflow.Question{testQuestion(1, 5)})
	require.NoError(t, err)
	_, err = store.UpsertAnswers(ctx, []stackoverflow.Answer{testAnswer(10, 1, 4)})
	require.NoError(t, err)

	require.NoError(t, store.Drop(ctx))

	count, err := store.questions.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	require.Zero(t, count)
	count, err = store.answers.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	require.Zero(t, count)
}
