package stackoverflow

// Question is one entry of the /questions listing, as reported by the
// Stack Exchange API. Its id doubles as the store primary key.
type Question struct {
	Id               int      `json:"question_id" bson:"question_id"`
	Title            string   `json:"title" bson:"title"`
	Link             string   `json:"link" bson:"link"`
	CreationDate     int64    `json:"creation_date" bson:"creation_date"`
	LastActivityDate int64    `json:"last_activity_date" bson:"last_activity_date"`
	LastEditDate     int64    `json:"last_edit_date,omitempty" bson:"last_edit_date,omitempty"`
	AnswerCount      int      `json:"answer_count" bson:"answer_count"`
	Score            int      `json:"score" bson:"score"`
	ViewCount        int      `json:"view_count" bson:"view_count"`
	Tags             []string `json:"tags" bson:"tags"`
	IsAnswered       bool     `json:"is_answered" bson:"is_answered"`
	ContentLicense   string   `json:"content_license" bson:"content_license"`
}

// RawAnswer is what the page extractor produces for a single answer
// block. It has no question id yet; the orchestrator attaches one
// before persistence.
//
// AuthorId is nil for anonymous or unresolved authors and -1 for
// community-owned answers.
type RawAnswer struct {
	Id                               int    `json:"answer_id" bson:"answer_id"`
	Snippets                         string `json:"snippets" bson:"snippets"`
	Score                            int    `json:"score" bson:"score"`
	PagePosition                     int    `json:"page_pos" bson:"page_pos"`
	IsAccepted                       bool   `json:"is_accepted" bson:"is_accepted"`
	IsHighestScored                  bool   `json:"is_highest_scored" bson:"is_highest_scored"`
	QuestionHasHighestAcceptedAnswer bool   `json:"question_has_highest_accepted_answer" bson:"question_has_highest_accepted_answer"`
	Source                           string `json:"source" bson:"source"`
	AuthorId                         *int   `json:"author_id" bson:"author_id"`
	AuthorUsername                   string `json:"author_username" bson:"author_username"`
}

// Answer is the store-ready record: a RawAnswer tagged with the id of
// the question it answers.
type Answer struct {
	RawAnswer  `bson:",inline"`
	QuestionId int `json:"question_id" bson:"question_id"`
}

// QuestionBatch is one API page worth of questions plus the quota and
// pacing state that came with it. It is transient; the orchestrator
// consumes it immediately.
type QuestionBatch struct {
	Items          []Question
	QuotaRemaining int
	QuotaMax       int
	HasMore        bool
	// server-requested cooperative pause before the next request, seconds
	Backoff int
}
