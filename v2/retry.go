package graphql

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
)

const (
	logEventRetry    = "HTTP-Retry"
	logEventResponse = "HTTP-Response"
)

// retriableStatusCodes are the statuses the executor re-issues a request for.
// Any other non-ok status is surfaced immediately.
var retriableStatusCodes = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// execute issues the request and re-issues it on transport failure or on a
// retriable status, up to maxRetries additional attempts with a fixed wait
// between them. attempt starts at 1.
//
// On transport exhaustion it returns an error; on retriable-status exhaustion
// it returns the last response and lets the caller translate it. Any other
// response is returned as-is.
func (c *Client) execute(ctx context.Context, params requestParams, attempt, maxRetries int) (*http.Response, error) {
	httpReq, err := params.toHTTPRequest(ctx)
	if err != nil {
		return nil, errors.New(formatErrorMessage(err.Error()))
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		if maxRetries > 0 && attempt <= maxRetries {
			c.logRetry(params, nil, attempt, maxRetries)
			if err := c.retryWait(ctx); err != nil {
				return nil, err
			}
			return c.execute(ctx, params, attempt+1, maxRetries)
		}
		if maxRetries == 0 {
			return nil, errors.New(formatErrorMessage(err.Error()))
		}
		return nil, errors.New(formatErrorMessage(fmt.Sprintf(maxRetriesReachedMessage, maxRetries, err.Error())))
	}

	if retriableStatusCodes[res.StatusCode] {
		if attempt <= maxRetries {
			c.logRetry(params, res, attempt, maxRetries)
			res.Body.Close()
			if err := c.retryWait(ctx); err != nil {
				return nil, err
			}
			return c.execute(ctx, params, attempt+1, maxRetries)
		}
		// Budget exhausted: hand the failed response back without an
		// HTTP-Response event.
		return res, nil
	}

	c.log.Debug(logEventResponse,
		abstractlogger.Any("requestParams", params),
		abstractlogger.Any("response", res),
	)
	return res, nil
}

func (c *Client) logRetry(params requestParams, lastResponse *http.Response, attempt, maxRetries int) {
	fields := []abstractlogger.Field{
		abstractlogger.Any("requestParams", params),
		abstractlogger.Int("retryAttempt", attempt),
		abstractlogger.Int("maxRetries", maxRetries),
	}
	if lastResponse != nil {
		fields = append(fields, abstractlogger.Any("lastResponse", lastResponse))
	}
	c.log.Debug(logEventRetry, fields...)
}

// retryWait sleeps the fixed backoff interval, honoring cancellation.
func (c *Client) retryWait(ctx context.Context) error {
	timer := time.NewTimer(c.retryWaitTime)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.New(formatErrorMessage(ctx.Err().Error()))
	}
}

// toHTTPRequest builds a fresh *http.Request; each retry attempt gets its own
// body reader over the same serialized bytes.
func (p requestParams) toHTTPRequest(ctx context.Context) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, p.Method, p.URL, bytes.NewReader(p.Body))
	if err != nil {
		return nil, err
	}
	for key, value := range p.Headers {
		httpReq.Header.Set(key, value)
	}
	return httpReq, nil
}
