package llmclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoChoices is returned when the endpoint answers without any candidate message.
var ErrNoChoices = errors.New("llmclient: endpoint returned no choices")

// EndpointError is a non-success HTTP status from the model endpoint.
type EndpointError struct {
	StatusCode int
	Err        error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("llmclient: endpoint returned status %d: %v", e.StatusCode, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Transient reports whether the request is worth retrying.
func (e *EndpointError) Transient() bool {
	return isTransientStatus(e.StatusCode)
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
