package graphql

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

type (
	QueryVariables map[string]any

	Request struct {
		q       string
		vars    QueryVariables
		url     string
		retries *int
		Header  http.Header
	}

	requestBody struct {
		Query     string         `json:"query"`
		Variables QueryVariables `json:"variables,omitempty"`
	}

	// requestParams is the fully resolved wire-level request handed to the
	// executor; a retry re-issues it unchanged.
	requestParams struct {
		URL     string            `json:"url"`
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
		Body    json.RawMessage   `json:"body"`
	}
)

// NewRequest makes a new Request with the specified operation string.
func NewRequest(q string) *Request {
	req := &Request{
		q:      q,
		Header: make(map[string][]string),
	}
	return req
}

// Var sets a variable.
func (req *Request) Var(key string, value interface{}) {
	if req.vars == nil {
		req.vars = make(map[string]interface{})
	}
	req.vars[key] = value
}

// Vars gets the variables for this Request.
func (req *Request) Vars() map[string]interface{} {
	return req.vars
}

// Query gets the operation string of this request.
func (req *Request) Query() string {
	return req.q
}

// URL overrides the client's endpoint for this request.
func (req *Request) URL(u string) {
	req.url = u
}

// Retries overrides the client's retry budget for this request. It is
// validated when the request is executed.
func (req *Request) Retries(n int) {
	req.retries = &n
}

func (c *Client) newRequestParams(req *Request) (requestParams, error) {
	var params requestParams

	body, err := json.Marshal(requestBody{Query: req.q, Variables: req.vars})
	if err != nil {
		return params, errors.Wrap(err, "serialize request")
	}

	url := c.endpoint
	if req.url != "" {
		url = req.url
	}

	params = requestParams{
		URL:     url,
		Method:  http.MethodPost,
		Headers: c.mergeHeaders(req.Header),
		Body:    body,
	}
	return params, nil
}

// mergeHeaders flattens the default and per-request headers into a single
// string-valued mapping. Multi-valued headers are joined with ", "; the
// per-request value wins on collision.
func (c *Client) mergeHeaders(h http.Header) map[string]string {
	flat := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for key, values := range c.headers {
		flat[http.CanonicalHeaderKey(key)] = strings.Join(values, ", ")
	}
	for key, values := range h {
		flat[http.CanonicalHeaderKey(key)] = strings.Join(values, ", ")
	}
	return flat
}
