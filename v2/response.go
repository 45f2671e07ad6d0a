package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

type (
	// ResponseErrors describes why a request did not produce a usable result.
	// GraphQLErrors carries the errors returned by the API itself; Response
	// holds the raw HTTP response when one was received.
	ResponseErrors struct {
		NetworkStatusCode int            `json:"networkStatusCode,omitempty"`
		Message           string         `json:"message,omitempty"`
		GraphQLErrors     gqlerror.List  `json:"graphQLErrors,omitempty"`
		Response          *http.Response `json:"-"`
	}

	Response struct {
		Data       json.RawMessage `json:"data,omitempty"`
		Extensions json.RawMessage `json:"extensions,omitempty"`
		Errors     *ResponseErrors `json:"errors,omitempty"`
	}

	// StreamResponse is one snapshot yielded by RequestStream: the merged
	// view of everything received so far. HasNext reports whether the server
	// announced further chunks.
	StreamResponse struct {
		Response
		HasNext bool `json:"hasNext"`
	}
)

// UnmarshalData decodes the data payload into t.
func (r *Response) UnmarshalData(t interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, t)
}

// UnmarshalExtensions decodes the extensions payload into t.
func (r *Response) UnmarshalExtensions(t interface{}) error {
	if r.Extensions == nil {
		return nil
	}
	return json.Unmarshal(r.Extensions, t)
}
