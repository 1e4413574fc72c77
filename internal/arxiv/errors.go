// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// TimeoutError reports an arXiv API request that exceeded its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("arxiv: %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// APIError reports a transport failure or an unexpected HTTP status from
// the arXiv API.
type APIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("arxiv: %s returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("arxiv: %s failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// FeedError reports an Atom feed body that could not be parsed.
type FeedError struct {
	Err error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("arxiv: parsing feed: %v", e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// DownloadError reports a PDF download that failed after exhausting all
// retry attempts. Timeout is set when the final attempt timed out.
type DownloadError struct {
	ArxivID  string
	Attempts int
	Timeout  bool
	Err      error
}

func (e *DownloadError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("arxiv: download of %s timed out after %d attempts: %v", e.ArxivID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("arxiv: download of %s failed after %d attempts: %v", e.ArxivID, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// isTimeout reports whether err is a request timeout of any flavor:
// a cancelled deadline, a net.Error timeout, or an os-level timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}
