// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdfparse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ValidationReason identifies which pre-parse check rejected a PDF.
type ValidationReason string

const (
	ReasonEmpty        ValidationReason = "empty"
	ReasonTooLarge     ValidationReason = "too_large"
	ReasonBadSignature ValidationReason = "bad_signature"
	ReasonTooManyPages ValidationReason = "too_many_pages"
)

// ValidationError reports a PDF rejected before parsing.
type ValidationError struct {
	Path   string
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pdf %s rejected: %s (%s)", e.Path, e.Reason, e.Detail)
}

// SoftSkip reports whether the rejection is a size or page budget, which
// the parser treats as a skip rather than a failure.
func (e *ValidationError) SoftSkip() bool {
	return e.Reason == ReasonTooLarge || e.Reason == ReasonTooManyPages
}

// Cause classifies why an engine extraction failed.
type Cause string

const (
	CauseCorrupt   Cause = "corrupt_file"
	CauseTimeout   Cause = "timeout"
	CauseResource  Cause = "resource_exhaustion"
	CausePageLimit Cause = "page_limit"
	CauseOther     Cause = "other"
)

// ParseError reports a failed extraction with a cause classification.
type ParseError struct {
	Path  string
	Cause Cause
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing pdf %s (%s): %v", e.Path, e.Cause, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// classifyCause inspects an engine failure and assigns a cause. Engines are
// black boxes, so beyond the timeout sentinels this falls back to message
// matching, the same heuristics the extraction tools themselves surface.
func classifyCause(err error) Cause {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return CauseTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return CauseTimeout
	case strings.Contains(msg, "not valid") || strings.Contains(msg, "corrupt") || strings.Contains(msg, "invalid pdf"):
		return CauseCorrupt
	case strings.Contains(msg, "memory") || strings.Contains(msg, "resource"):
		return CauseResource
	case strings.Contains(msg, "page"):
		return CausePageLimit
	default:
		return CauseOther
	}
}
