package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"stackharvest/lib/scrapers/stackoverflow"

	"github.com/stretchr/testify/require"
)

const codeAnswerPage = `<!DOCTYPE html>
<html><body>
	<div class="answer accepted-answer" data-answerid="500" data-score="10" data-position-on-page="0" data-highest-scored="1" data-question-has-accepted-highest-score="1">
		<div class="answercell"><pre><code>int main(void) { return 0; }</code></pre></div>
		<div class="post-signature"><div class="user-details"><a href="/users/26/jon-skeet">Jon Skeet</a></div></div>
	</div>
	<div class="answer" data-answerid="501" data-score="2" data-position-on-page="1" data-highest-scored="0" data-question-has-accepted-highest-score="1">
		<div class="answercell"><pre><code>exit(0);</code></pre></div>
		<div class="post-signature"><div class="user-details"><a href="/users/-1">Community</a></div></div>
	</div>
</body></html>`

const proseOnlyPage = `<!DOCTYPE html>
<html><body>
	<div class="answer" data-answerid="600" data-score="4" data-position-on-page="0" data-highest-scored="1" data-question-has-accepted-highest-score="0">
		<div class="answercell"><p>no code to see here</p></div>
		<div class="post-signature"><div class="user-details"><a href="/users/7/someone">someone</a></div></div>
	</div>
</body></html>`

type fakeStore struct {
	dropped   int
	questions map[int]stackoverflow.Question
	answers   map[int]stackoverflow.Answer
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		questions: map[int]stackoverflow.Question{},
		answers:   map[int]stackoverflow.Answer{},
	}
}

func (s *fakeStore) Drop(ctx context.Context) error {
	s.dropped++
	s.questions = map[int]stackoverflow.Question{}
	s.answers = map[int]stackoverflow.Answer{}
	return nil
}

func (s *fakeStore) UpsertQuestions(ctx context.Context, questions []stackoverflow.Question) (int64, error) {
	var upserted int64
	for _, q := range questions {
		if _, ok := s.questions[q.Id]; !ok {
			upserted++
		}
		s.questions[q.Id] = q
	}
	return upserted, nil
}

func (s *fakeStore) UpsertAnswers(ctx context.Context, answers []stackoverflow.Answer) (int64, error) {
	var upserted int64
	for _, a := range answers {
		if _, ok := s.answers[a.Id]; !ok {
			upserted++
		}
		s.answers[a.Id] = a
	}
	return upserted, nil
}

// serves the question listing plus two question pages and counts how
// often each path is hit
func harvestFixture(t *testing.T) (*stackoverflow.Client, map[string]int) {
	t.Helper()

	hits := map[string]int{}
	var server *httptest.Server

	mux := http.NewServeMux()
	mux.HandleFunc("/questions", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		question := func(id, answerCount, score int) stackoverflow.Question {
			return stackoverflow.Question{
				Id:          id,
				Title:       fmt.Sprintf("question %d", id),
				Link:        fmt.Sprintf("%s/q/%d", server.URL, id),
				AnswerCount: answerCount,
				Score:       score,
				Tags:        []string{"c"},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []stackoverflow.Question{
				question(1, 2, 5),  // two code answers, kept
				question(2, 0, 9),  // unanswered, filtered before any fetch
				question(3, 1, 0),  // low score, filtered before any fetch
				question(4, 1, 3),  // prose-only answers, marked for removal
			},
			"quota_remaining": 300,
			"quota_max":       300,
			"has_more":        false,
		})
	})
	mux.HandleFunc("/q/", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/q/1":
			w.Write([]byte(codeAnswerPage))
		case "/q/4":
			w.Write([]byte(proseOnlyPage))
		default:
			http.NotFound(w, r)
		}
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := stackoverflow.NewClient(stackoverflow.ClientOptions{
		Site:       server.URL,
		ApiBaseUrl: server.URL,
		NoCache:    true,
	})
	require.NoError(t, err)
	return client, hits
}

func TestRun(t *testing.T) {
	client, hits := harvestFixture(t)
	st := newFakeStore()
	service := NewService(client, st)

	report, err := service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.Equal(t, 1, report.Pages)
	require.Equal(t, 4, report.QuestionsSeen)
	require.Equal(t, 2, report.QuestionsFiltered)
	require.Equal(t, 1, report.QuestionsMarked)
	require.Equal(t, int64(1), report.QuestionsStored)
	require.Equal(t, int64(2), report.AnswersStored)

	// filtered questions must never reach the page extractor
	require.Equal(t, 1, hits["/q/1"])
	require.Equal(t, 1, hits["/q/4"])
	require.Zero(t, hits["/q/2"])
	require.Zero(t, hits["/q/3"])

	// only the question with quality answers is persisted
	require.Len(t, st.questions, 1)
	require.Contains(t, st.questions, 1)

	require.Len(t, st.answers, 2)
	for _, a := range st.answers {
		require.Equal(t, 1, a.QuestionId)
	}
	require.Equal(t, "jon-skeet", st.answers[500].AuthorUsername)
	require.NotNil(t, st.answers[501].AuthorId)
	require.Equal(t, -1, *st.answers[501].AuthorId)
}

func TestRunIsIdempotent(t *testing.T) {
	client, _ := harvestFixture(t)
	st := newFakeStore()
	service := NewService(client, st)

	first, err := service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), first.QuestionsStored)
	require.Equal(t, int64(2), first.AnswersStored)

	second, err := service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Zero(t, second.QuestionsStored)
	require.Zero(t, second.AnswersStored)

	require.Len(t, st.questions, 1)
	require.Len(t, st.answers, 2)
}

func TestRunDrop(t *testing.T) {
	client, _ := harvestFixture(t)
	st := newFakeStore()
	service := NewService(client, st)

	_, err := service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Zero(t, st.dropped)

	_, err = service.Run(context.Background(), RunOptions{Drop: true})
	require.NoError(t, err)
	require.Equal(t, 1, st.dropped)
}

func TestRunKeepLowScore(t *testing.T) {
	client, hits := harvestFixture(t)
	service := NewService(client, newFakeStore())

	report, err := service.Run(context.Background(), RunOptions{KeepLowScore: true})
	require.NoError(t, err)

	// the zero score question is fetched now, the unanswered one still isn't
	require.Equal(t, 1, report.QuestionsFiltered)
	require.Equal(t, 1, hits["/q/3"])
	require.Zero(t, hits["/q/2"])
}

func TestRunAnnotatesFailingQuestionLink(t *testing.T) {
	hits := map[string]int{}
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/questions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []stackoverflow.Question{{
				Id:          9,
				Link:        server.URL + "/q/9",
				AnswerCount: 1,
				Score:       1,
			}},
			"quota_remaining": 300,
			"quota_max":       300,
			"has_more":        false,
		})
	})
	mux.HandleFunc("/q/9", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		http.Error(w, "tea time", http.StatusTeapot)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client, err := stackoverflow.NewClient(stackoverflow.ClientOptions{
		Site:       server.URL,
		ApiBaseUrl: server.URL,
		NoCache:    true,
	})
	require.NoError(t, err)

	_, err = NewService(client, newFakeStore()).Run(context.Background(), RunOptions{})
	require.ErrorContains(t, err, "/q/9")
	require.Equal(t, 1, hits["/q/9"])
}
