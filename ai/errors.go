package ai

import (
	"errors"
	"fmt"
)

// ErrNoBody is returned when a streaming response carries no readable body.
var ErrNoBody = errors.New("inference server returned no response body")

// HTTPError is a non-2xx response from the inference server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("inference server returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("inference server returned HTTP %d: %s", e.StatusCode, e.Body)
}

// StreamError is an error reported inside the event stream itself.
// Partial holds the text accumulated before the error arrived.
type StreamError struct {
	Message string
	Partial string
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error after %d chars: %s", len(e.Partial), e.Message)
	}
	return "stream error: " + e.Message
}

// IsHTTPStatus reports whether err is an HTTPError with the given status code.
func IsHTTPStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}
