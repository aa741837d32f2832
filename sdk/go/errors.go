package collabsdk

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned before any request is sent when the
// session lacks the token the endpoint needs.
var ErrNotAuthenticated = errors.New("collabsdk: not authenticated for this endpoint")

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s detail=%s", e.StatusCode, e.Code, e.Detail)
}

// NetworkError is a transport failure; the request may not have reached the server.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Temporary reports that retrying later may succeed.
func (e *NetworkError) Temporary() bool { return true }

// SchemaError means the response body did not match the expected shape.
type SchemaError struct {
	Type string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s: %v", e.Type, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
