package graphql

import (
	"net/http"
	"time"

	"github.com/jensneuse/abstractlogger"
)

type (
	ClientOption func(*Client)

	// HTTPRequestDoer is the transport adapter. Anything that can execute an
	// *http.Request works, including *http.Client.
	HTTPRequestDoer interface {
		Do(r *http.Request) (*http.Response, error)
	}

	Client struct {
		httpClient    HTTPRequestDoer
		endpoint      string
		headers       http.Header
		retries       int
		retryWaitTime time.Duration
		log           abstractlogger.Logger
	}
)

const defaultRetryWaitTime = 1000 * time.Millisecond

// NewClient makes a new Client capable of making GraphQL requests against the
// given endpoint. The configured retry budget must be within [0, 3].
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		endpoint:      endpoint,
		retryWaitTime: defaultRetryWaitTime,
	}
	for _, optionFunc := range opts {
		optionFunc(c)
	}
	if err := validateRetries(c.retries); err != nil {
		return nil, err
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.log == nil {
		c.log = abstractlogger.NoopLogger
	}
	return c, nil
}

// WithHTTPClient specifies the underlying transport to use when making
// requests.
//
//	NewClient(endpoint, WithHTTPClient(specificHTTPClient))
func WithHTTPClient(httpclient HTTPRequestDoer) ClientOption {
	return func(client *Client) {
		client.httpClient = httpclient
	}
}

// WithHeaders sets default headers sent with every request. Multi-valued
// headers are joined with ", " on the wire. Per-request headers win over
// these.
func WithHeaders(headers http.Header) ClientOption {
	return func(client *Client) {
		client.headers = headers
	}
}

// WithRetries sets the default retry budget applied when a request does not
// carry its own.
func WithRetries(retries int) ClientOption {
	return func(client *Client) {
		client.retries = retries
	}
}

// WithLogger sets the sink for HTTP-Retry and HTTP-Response events. Without
// it the client is silent.
func WithLogger(log abstractlogger.Logger) ClientOption {
	return func(client *Client) {
		client.log = log
	}
}

// WithRetryWaitTime overrides the fixed interval slept between retry
// attempts.
func WithRetryWaitTime(d time.Duration) ClientOption {
	return func(client *Client) {
		client.retryWaitTime = d
	}
}
