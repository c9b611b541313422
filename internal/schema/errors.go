package schema

import (
	"fmt"
	"strconv"
	"time"
)

// FormatError means the raw bytes could not be parsed as a table at
// all: no delimiter found, corrupt spreadsheet archive, undecodable
// encoding. It is fatal to the upload request but never to the process.
type FormatError struct {
	Format string // "csv", "xlsx", "html"
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparseable %s input: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("unparseable %s input: %s", e.Format, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// EmptyWindowError is the valid "no data" state for a metrics query:
// the window is inverted or no rows fall inside it. Callers render it,
// they do not treat it as a crash.
type EmptyWindowError struct {
	Start time.Time
	End   time.Time
}

func (e *EmptyWindowError) Error() string {
	if e.End.Before(e.Start) {
		return fmt.Sprintf("empty window: start %s after end %s",
			e.Start.Format(DateLayout), e.End.Format(DateLayout))
	}
	return fmt.Sprintf("empty window: no rows in [%s, %s]",
		e.Start.Format(DateLayout), e.End.Format(DateLayout))
}

// NotFoundError means the session has no dataset yet (nothing uploaded).
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return "no dataset uploaded for session " + e.SessionID
}

// Severity of a ValidationIssue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ValidationIssue is a structured, non-exceptional report of a problem
// found during validation. Issues are collected into a list so the
// caller can render partial feedback; a single error-severity issue
// blocks promotion to Dataset.
type ValidationIssue struct {
	Severity Severity `json:"severity"`
	Column   string   `json:"column,omitempty"`
	Message  string   `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Column != "" {
		return string(i.Severity) + " [" + i.Column + "]: " + i.Message
	}
	return string(i.Severity) + ": " + i.Message
}

// HasErrors reports whether any issue in the list is error severity.
func HasErrors(issues []ValidationIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Warnings filters the list down to warning-severity issues.
func Warnings(issues []ValidationIssue) []ValidationIssue {
	out := make([]ValidationIssue, 0, len(issues))
	for _, i := range issues {
		if i.Severity == SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
