package stackoverflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stackharvest/lib/backoff"

	"github.com/go-resty/resty/v2"
)

var errRetryBudgetExhausted = errors.New("retry budget exhausted while throttled")

// StatusError is a fatal non-2xx response. ErrorId and Message are
// populated when the remote sent a structured API error body.
type StatusError struct {
	StatusCode int
	Status     string
	ErrorId    int
	Message    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.ErrorId != 0 || e.Message != "" {
		return fmt.Sprintf("%s: api error %d: %s", e.Status, e.ErrorId, e.Message)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Body)
	}
	return e.Status
}

// classify decides what to do with a completed response. retry=false
// with a nil error means the response is good; retry=true means
// "sleep wait, then reissue the same request"; a non-nil error is
// fatal for the whole request chain.
//
// Every network failure funnels through here; nothing is dropped
// silently.
func classify(res *resty.Response, seq *backoff.Sequence) (wait time.Duration, retry bool, err error) {
	code := res.StatusCode()
	if code >= 200 && code < 300 {
		return 0, false, nil
	}

	if code == http.StatusTooManyRequests {
		if wait, ok := retryAfter(res); ok {
			return wait, true, nil
		}
		wait, ok := seq.Next()
		if !ok {
			return 0, false, fmt.Errorf("%s: %w", res.Status(), errRetryBudgetExhausted)
		}
		return wait, true, nil
	}

	body := res.Body()
	if len(body) == 0 {
		return 0, false, &StatusError{StatusCode: code, Status: res.Status()}
	}
	if strings.Contains(res.Header().Get("Content-Type"), "json") {
		var apiErr struct {
			ErrorId      int    `json:"error_id"`
			ErrorMessage string `json:"error_message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && (apiErr.ErrorId != 0 || apiErr.ErrorMessage != "") {
			return 0, false, &StatusError{
				StatusCode: code,
				Status:     res.Status(),
				ErrorId:    apiErr.ErrorId,
				Message:    apiErr.ErrorMessage,
			}
		}
	}
	return 0, false, &StatusError{StatusCode: code, Status: res.Status(), Body: string(body)}
}

// retryAfter reads the Retry-After header, which is either seconds to
// wait or an HTTP-date to wait until (rounded up, never negative).
func retryAfter(res *resty.Response) (time.Duration, bool) {
	header := res.Header().Get("Retry-After")
	if header == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(header)
	if err != nil {
		return 0, false
	}
	seconds := math.Ceil(time.Until(at).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds) * time.Second, true
}

// getWithRetry drives one logical GET through the throttle policy:
// sleep and reissue while throttled, up to the backoff sequence's
// attempt budget, and fail fast on any other non-2xx status.
func (c *Client) getWithRetry(ctx context.Context, client *resty.Client, link string, query map[string]string) (*resty.Response, error) {
	seq, err := backoff.New(c.retry)
	if err != nil {
		return nil, err
	}

	for {
		req := client.R().SetContext(ctx)
		if query != nil {
			req.SetQueryParams(query)
		}
		res, err := req.Get(link)
		if err != nil {
			return nil, err
		}

		wait, retry, err := classify(res, seq)
		if err != nil {
			return nil, err
		}
		if !retry {
			return res, nil
		}

		slog.WarnContext(ctx, "throttled, retrying", "url", link, "wait", wait)
		time.Sleep(wait)
	}
}
