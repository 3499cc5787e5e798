package httputil

import (
	"net/http"
	"time"
)

// ArchiveTimeout covers a full year of daily data, which the archive API can
// take a while to assemble.
const ArchiveTimeout = 90 * time.Second

// NewClientWithTimeout returns an HTTP client with the given overall timeout.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}
