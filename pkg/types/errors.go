package types

import (
	"fmt"
)

// UpstreamError is returned when an upstream service answered with a
// non-success status. Transport and decode failures are reported as plain
// errors instead.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}
