package stackoverflow

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Answers fetches a question's rendered page and extracts every answer
// that carries at least one non-empty code snippet. Answers without
// code contribute nothing and are skipped, so an empty result is not
// an error.
func (c *Client) Answers(ctx context.Context, link string) ([]RawAnswer, error) {
	ctx, span := tracer.Start(ctx, "client:Answers")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	res, err := c.getWithRetry(ctx, c.web, link, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch question page")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	var answers []RawAnswer
	var parseErr error
	doc.Find("div.answer").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		answer, ok, err := parseAnswerBlock(c.site, block)
		if err != nil {
			parseErr = err
			return false
		}
		if ok {
			answers = append(answers, answer)
		}
		return true
	})
	if parseErr != nil {
		span.RecordError(parseErr)
		span.SetStatus(codes.Error, "failed to parse answer block")
		return nil, parseErr
	}

	return answers, nil
}

// parseAnswerBlock turns one answer block into a RawAnswer. The bool
// is false when the block should be skipped (no answer cell, no code,
// or code that trims to nothing).
func parseAnswerBlock(site *url.URL, block *goquery.Selection) (RawAnswer, bool, error) {
	cell := block.Find("div.answercell")
	if cell.Length() == 0 {
		return RawAnswer{}, false, nil
	}

	id, err := intAttr(block, "data-answerid")
	if err != nil {
		return RawAnswer{}, false, err
	}

	snippetElems := cell.Find("pre > code")
	if snippetElems.Length() == 0 {
		return RawAnswer{}, false, nil
	}
	var parts []string
	snippetElems.Each(func(_ int, code *goquery.Selection) {
		parts = append(parts, code.Text())
	})
	snippets := strings.TrimSpace(strings.Join(parts, "\n"))
	if snippets == "" {
		return RawAnswer{}, false, nil
	}

	score, err := intAttr(block, "data-score")
	if err != nil {
		return RawAnswer{}, false, fmt.Errorf("answer %d: %w", id, err)
	}
	position, err := intAttr(block, "data-position-on-page")
	if err != nil {
		return RawAnswer{}, false, fmt.Errorf("answer %d: %w", id, err)
	}

	authorId, authorName, err := resolveAuthor(block)
	if err != nil {
		return RawAnswer{}, false, fmt.Errorf("answer %d: %w", id, err)
	}

	return RawAnswer{
		Id:                               id,
		Snippets:                         snippets,
		Score:                            score,
		PagePosition:                     position,
		IsAccepted:                       block.HasClass("accepted-answer"),
		IsHighestScored:                  block.AttrOr("data-highest-scored", "") == "1",
		QuestionHasHighestAcceptedAnswer: block.AttrOr("data-question-has-accepted-highest-score", "") == "1",
		Source:                           fmt.Sprintf("%s/a/%d", strings.TrimRight(site.String(), "/"), id),
		AuthorId:                         authorId,
		AuthorUsername:                   authorName,
	}, true, nil
}

func intAttr(sel *goquery.Selection, name string) (int, error) {
	raw, ok := sel.Attr(name)
	if !ok {
		return 0, fmt.Errorf("answer block is missing attribute %q", name)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("answer attribute %q is not a number: %q", name, raw)
	}
	return value, nil
}
