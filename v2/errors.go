package graphql

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// clientLabel prefixes every user-visible error message produced by the
// client.
const clientLabel = "GraphQL Client"

const (
	minRetriesValue = 0
	maxRetriesValue = 3
)

const (
	streamableOperationMessage    = "This operation will result in a streamable response - use the RequestStream() method instead"
	notStreamableOperationMessage = "This operation does not result in a streamable response - use the Request() method instead"
	graphQLErrorsMessage          = "An error occurred while fetching from the API. Review 'graphQLErrors' for details."
	noDataMessage                 = "An unknown error has occurred. The API did not return a data object or any errors in its response."
	streamTerminatedMessage       = "Response stream terminated unexpectedly"

	unexpectedContentTypeMessage = "Response returned unexpected Content-Type: %s"
	maxRetriesReachedMessage     = "Attempted maximum number of %d network retries. Last message - %s"
	invalidRetriesMessage        = `The provided "retries" value (%d) is invalid - it cannot be less than 0 or greater than 3`
	streamPayloadMessage         = "Error occured while processing stream payload - %s"
	multipartParseMessage        = "Error in parsing multipart response - %s"
)

var (
	ErrStreamableOperation    = errors.New(formatErrorMessage(streamableOperationMessage))
	ErrNotStreamableOperation = errors.New(formatErrorMessage(notStreamableOperationMessage))
)

// formatErrorMessage prepends the client label unless the message already
// carries it.
func formatErrorMessage(msg string) string {
	if strings.HasPrefix(msg, clientLabel+": ") {
		return msg
	}
	return clientLabel + ": " + msg
}

// validateRetries bounds the retry budget to [0, 3]. The budget counts
// additional attempts beyond the first request.
func validateRetries(retries int) error {
	if retries < minRetriesValue || retries > maxRetriesValue {
		return errors.New(formatErrorMessage(fmt.Sprintf(invalidRetriesMessage, retries)))
	}
	return nil
}
