package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// deferOperationRegex detects the @defer directive. The check is purely
// textual so that it stays cheap and side-effect-free.
var deferOperationRegex = regexp.MustCompile(`(?i)@\s*defer\b`)

// IsStreamableOperation reports whether the operation uses @defer and will
// therefore produce an incremental response.
func IsStreamableOperation(operation string) bool {
	return deferOperationRegex.MatchString(operation)
}

// Fetch executes the operation and returns the raw HTTP response. No parsing
// or classification happens beyond the executor's retry handling.
func (c *Client) Fetch(ctx context.Context, req *Request) (*http.Response, error) {
	params, maxRetries, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, params, 1, maxRetries)
}

// Request executes a non-streamable operation and classifies the response.
// Transport, HTTP and payload failures are reported through Response.Errors;
// the returned error is reserved for invalid input.
func (c *Client) Request(ctx context.Context, req *Request) (*Response, error) {
	if IsStreamableOperation(req.q) {
		return nil, ErrStreamableOperation
	}
	params, maxRetries, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	res, err := c.execute(ctx, params, 1, maxRetries)
	if err != nil {
		return &Response{Errors: &ResponseErrors{Message: formatErrorMessage(err.Error())}}, nil
	}
	defer res.Body.Close()
	return c.processResponse(res), nil
}

// RequestStream executes a @defer operation and returns the sequence of
// response snapshots. The channel closes when the stream ends; cancelling ctx
// stops the stream and releases the body reader.
func (c *Client) RequestStream(ctx context.Context, req *Request) (<-chan StreamResponse, error) {
	if !IsStreamableOperation(req.q) {
		return nil, ErrNotStreamableOperation
	}

	out := make(chan StreamResponse)
	go func() {
		defer close(out)

		params, maxRetries, err := c.prepare(req)
		if err != nil {
			emit(ctx, out, errorOnlySnapshot(0, formatErrorMessage(err.Error())))
			return
		}
		res, err := c.execute(ctx, params, 1, maxRetries)
		if err != nil {
			emit(ctx, out, errorOnlySnapshot(0, formatErrorMessage(err.Error())))
			return
		}
		defer res.Body.Close()

		if !isOK(res.StatusCode) {
			emit(ctx, out, errorOnlySnapshot(res.StatusCode, formatErrorMessage(http.StatusText(res.StatusCode))))
			return
		}

		contentType := res.Header.Get("Content-Type")
		switch {
		case strings.Contains(contentType, contentTypeMultipart):
			c.streamMultipart(ctx, out, res)
		case strings.Contains(contentType, contentTypeJSON):
			single := c.processResponse(res)
			emit(ctx, out, StreamResponse{Response: *single})
		default:
			emit(ctx, out, errorOnlySnapshot(res.StatusCode, formatErrorMessage(fmt.Sprintf(unexpectedContentTypeMessage, contentType))))
		}
	}()
	return out, nil
}

// prepare resolves the effective retry budget and wire-level parameters.
// Nothing reaches the transport when the budget is out of range.
func (c *Client) prepare(req *Request) (requestParams, int, error) {
	retries := c.retries
	if req.retries != nil {
		retries = *req.retries
	}
	if err := validateRetries(retries); err != nil {
		return requestParams{}, 0, err
	}
	params, err := c.newRequestParams(req)
	if err != nil {
		return requestParams{}, 0, err
	}
	return params, retries, nil
}

func (c *Client) processResponse(res *http.Response) *Response {
	if !isOK(res.StatusCode) {
		return &Response{Errors: &ResponseErrors{
			NetworkStatusCode: res.StatusCode,
			Message:           formatErrorMessage(http.StatusText(res.StatusCode)),
			Response:          res,
		}}
	}

	contentType := res.Header.Get("Content-Type")
	if !strings.Contains(contentType, contentTypeJSON) {
		return &Response{Errors: &ResponseErrors{
			NetworkStatusCode: res.StatusCode,
			Message:           formatErrorMessage(fmt.Sprintf(unexpectedContentTypeMessage, contentType)),
			Response:          res,
		}}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return &Response{Errors: &ResponseErrors{
			NetworkStatusCode: res.StatusCode,
			Message:           formatErrorMessage(err.Error()),
			Response:          res,
		}}
	}
	return buildResponse(res, body)
}

// buildResponse classifies a JSON body into data, extensions and errors. The
// body is probed key-by-key so that a payload with neither data nor errors is
// recognized without a full decode.
func buildResponse(res *http.Response, body []byte) *Response {
	response := &Response{}

	if data, dataType, _, err := jsonparser.Get(body, "data"); err == nil && dataType != jsonparser.Null {
		response.Data = append(json.RawMessage(nil), data...)
	}
	if ext, extType, _, err := jsonparser.Get(body, "extensions"); err == nil && extType != jsonparser.Null {
		response.Extensions = append(json.RawMessage(nil), ext...)
	}

	errsRaw, errsType, _, errsErr := jsonparser.Get(body, "errors")
	hasErrors := errsErr == nil && errsType != jsonparser.Null

	if hasErrors || response.Data == nil {
		respErrors := &ResponseErrors{
			NetworkStatusCode: res.StatusCode,
			Response:          res,
		}
		if hasErrors {
			respErrors.Message = formatErrorMessage(graphQLErrorsMessage)
			var list gqlerror.List
			if err := json.Unmarshal(errsRaw, &list); err == nil {
				respErrors.GraphQLErrors = list
			}
		} else {
			respErrors.Message = formatErrorMessage(noDataMessage)
		}
		response.Errors = respErrors
	}
	return response
}

func isOK(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

func errorOnlySnapshot(statusCode int, message string) StreamResponse {
	return StreamResponse{Response: Response{Errors: &ResponseErrors{
		NetworkStatusCode: statusCode,
		Message:           message,
	}}}
}

// emit delivers a snapshot unless the consumer is gone.
func emit(ctx context.Context, out chan<- StreamResponse, res StreamResponse) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
