package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError is returned when the API answers with a non-200 status.
type RequestError struct {
	Status int
	URL    string
	Body   string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request %s failed with status %d", e.URL, e.Status)
	}

	return fmt.Sprintf("request %s failed with status %d: %s", e.URL, e.Status, e.Body)
}

// Temporary reports whether the request may succeed when repeated.
func (e *RequestError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound
}
