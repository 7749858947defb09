// Package controller provides the operator-facing surfaces of the pipeline:
// the error-interaction contract and the status displays.
package controller

import (
	m "vss2git.dev/pkg/vss2git/internal/model"
)

// ErrorChoice is the operator's answer to a recoverable pipeline error.
type ErrorChoice int

// Possible answers to ReportError.
const (
	ChoiceAbort ErrorChoice = iota
	ChoiceRetry
	ChoiceIgnore
)

// String returns the choice name.
func (c ErrorChoice) String() string {
	switch c {
	case ChoiceAbort:
		return "abort"
	case ChoiceRetry:
		return "retry"
	case ChoiceIgnore:
		return "ignore"
	}

	return "unknown"
}

// UI is the interaction contract between the pipeline and the operator.
// Implementations can prompt on a console, answer automatically, or drive a
// richer display; the pipeline only ever sees the three-way choice.
type UI interface {
	// ReportError describes a recoverable failure and returns how to
	// proceed. Retry re-attempts the failed unit only.
	ReportError(message string) ErrorChoice
	// Confirm asks a yes/no question.
	Confirm(message string) bool
	// ShowFatal reports an unrecoverable failure with its cause.
	ShowFatal(message string, cause error)
	// Progress publishes a one-line status update.
	Progress(stage m.Stage, status string)
}
