package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from a platform, carrying the upstream body
type APIError struct {
	Platform   string
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed (status %d): %s", e.Platform, e.Op, e.StatusCode, e.Body)
}

// IsUnavailable reports whether err is a permission-style rejection meaning the
// feature is off for the resource (private community, comments disabled, missing list).
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether the platform rejected our token
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
