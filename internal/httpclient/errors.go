package httpclient

import "fmt"

// UpstreamError is returned when an upstream service responds with a
// non-2xx status. The body is kept verbatim so callers can surface the
// provider's own error message.
type UpstreamError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}
