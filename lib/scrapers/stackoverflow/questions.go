package stackoverflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// questions that are newer than this are excluded from every listing
// request, which keeps the harvested corpus stable across runs
var questionBoundary = time.Date(2021, 12, 4, 0, 0, 0, 0, time.UTC)

type QuestionsOptions struct {
	// questions per API page, in [1, 100]
	PageSize int
	// 1-indexed page to start from
	StartPage int
	// maximum number of pages to pull
	MaxPages int
	// question tag the listing is restricted to
	Tag string
	// optional Stack Exchange API key, grants a larger request quota
	ApiKey string
}

func (o *QuestionsOptions) setDefaults() {
	if o.PageSize == 0 {
		o.PageSize = 100
	}
	if o.StartPage == 0 {
		o.StartPage = 1
	}
	if o.MaxPages == 0 {
		o.MaxPages = 10
	}
	if o.Tag == "" {
		o.Tag = "c"
	}
}

func (o QuestionsOptions) validate() error {
	if o.PageSize < 1 || o.PageSize > 100 {
		return fmt.Errorf("page size must be in [1, 100], got %d", o.PageSize)
	}
	if o.StartPage < 1 {
		return fmt.Errorf("start page must be >= 1, got %d", o.StartPage)
	}
	if o.MaxPages < 1 {
		return fmt.Errorf("max pages must be >= 1, got %d", o.MaxPages)
	}
	return nil
}

// QuestionPager pulls the paginated question listing one page at a
// time, bufio.Scanner style:
//
//	pager, err := client.Questions(opts)
//	for pager.Next(ctx) {
//		batch := pager.Batch()
//		...
//	}
//	if pager.Err() != nil { ... }
//
// No page is buffered beyond the current one, so the caller may pause
// indefinitely between pulls.
type QuestionPager struct {
	client *Client
	opts   QuestionsOptions

	page    int
	pulled  int
	pending time.Duration
	batch   QuestionBatch
	done    bool
	err     error
}

func (c *Client) Questions(opts QuestionsOptions) (*QuestionPager, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &QuestionPager{
		client: c,
		opts:   opts,
		page:   opts.StartPage,
	}, nil
}

// Next fetches the next page. It returns false once the listing is
// exhausted, the quota is depleted, the page budget is spent, or a
// fatal error occurred; check Err afterwards.
func (p *QuestionPager) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}

	// cooperative pacing the server asked for after the previous page
	if p.pending > 0 {
		slog.InfoContext(ctx, "api requested cooperative backoff", "wait", p.pending)
		time.Sleep(p.pending)
		p.pending = 0
	}

	ctx, span := tracer.Start(ctx, "pager:Next")
	defer span.End()
	span.SetAttributes(attribute.Int("page", p.page))

	query := map[string]string{
		"site":     "stackoverflow",
		"sort":     "activity",
		"order":    "desc",
		"tagged":   p.opts.Tag,
		"pagesize": strconv.Itoa(p.opts.PageSize),
		"todate":   strconv.FormatInt(questionBoundary.Unix(), 10),
		"page":     strconv.Itoa(p.page),
	}
	if p.opts.ApiKey != "" {
		query["key"] = p.opts.ApiKey
	}

	res, err := p.client.getWithRetry(ctx, p.client.api, "/questions", query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch question page")
		p.err = fmt.Errorf("fetch questions page %d: %w", p.page, err)
		return false
	}

	// a pointer distinguishes a missing items field from an empty page;
	// both missing and mistyped items are contract violations, never
	// retried
	var envelope struct {
		Items          *[]Question `json:"items"`
		QuotaRemaining int         `json:"quota_remaining"`
		QuotaMax       int         `json:"quota_max"`
		HasMore        bool        `json:"has_more"`
		Backoff        int         `json:"backoff"`
	}
	if err := json.Unmarshal(res.Body(), &envelope); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed envelope")
		p.err = fmt.Errorf("malformed questions envelope on page %d: %w", p.page, err)
		return false
	}
	if envelope.Items == nil {
		span.SetStatus(codes.Error, "envelope missing items")
		p.err = fmt.Errorf("questions envelope on page %d is missing items: %s", p.page, res.String())
		return false
	}

	p.batch = QuestionBatch{
		Items:          *envelope.Items,
		QuotaRemaining: envelope.QuotaRemaining,
		QuotaMax:       envelope.QuotaMax,
		HasMore:        envelope.HasMore,
		Backoff:        envelope.Backoff,
	}
	p.pulled++
	slog.InfoContext(
		ctx, "fetched question page",
		"page", p.page,
		"questions", len(p.batch.Items),
		"pages_pulled", fmt.Sprintf("%d/%d", p.pulled, p.opts.MaxPages),
		"quota", fmt.Sprintf("%d/%d", p.batch.QuotaRemaining, p.batch.QuotaMax),
	)
	p.page++

	if !p.batch.HasMore || p.batch.QuotaRemaining <= 0 || p.pulled >= p.opts.MaxPages {
		p.done = true
	} else if p.batch.Backoff > 0 {
		p.pending = time.Duration(p.batch.Backoff) * time.Second
	}
	return true
}

// Batch returns the page fetched by the last successful Next.
func (p *QuestionPager) Batch() QuestionBatch {
	return p.batch
}

func (p *QuestionPager) Err() error {
	return p.err
}
