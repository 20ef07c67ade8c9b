package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the machine-readable classification of a failure or warning.
type ErrorKind string

const (
	ErrKindFetch             ErrorKind = "fetch_error"
	ErrKindNotFound          ErrorKind = "not_found"
	ErrKindMalformedEvent    ErrorKind = "malformed_event"
	ErrKindBudgetExceeded    ErrorKind = "budget_exceeded"
	ErrKindSynthesisParse    ErrorKind = "synthesis_parse"
	ErrKindSynthesisTimeout  ErrorKind = "synthesis_timeout"
	ErrKindSynthesisDegraded ErrorKind = "synthesis_degraded"
	ErrKindConfig            ErrorKind = "config_error"
	ErrKindCancelled         ErrorKind = "cancelled"
	ErrKindInternal          ErrorKind = "internal"
)

// KindedError is implemented by every error in the pipeline taxonomy.
type KindedError interface {
	error
	ErrorKind() ErrorKind
}

// KindOf returns the kind of err, looking through wrapping.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.ErrorKind()
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled
	}
	return ErrKindInternal
}

// IsRetryable reports whether err is a transient fetch failure.
func IsRetryable(err error) bool {
	return KindOf(err) == ErrKindFetch
}

// FetchError is a transient failure talking to the PR source
// (network error, rate limit, server error).
type FetchError struct {
	Ref PRRef
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s (%s): %v", e.Ref, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) ErrorKind() ErrorKind { return ErrKindFetch }

// NotFoundError means the identifier does not resolve to a pull request.
type NotFoundError struct {
	Ref      PRRef
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.Ref)
	}
	return fmt.Sprintf("pull request not found: %s", e.Ref)
}

func (e *NotFoundError) ErrorKind() ErrorKind { return ErrKindNotFound }

// MalformedEventError reports a raw record whose kind is outside the known set.
type MalformedEventError struct {
	Index   int
	RawKind string
	ID      string
}

func (e *MalformedEventError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %d (%s): unknown event kind %q", e.Index, e.ID, e.RawKind)
	}
	return fmt.Sprintf("record %d: unknown event kind %q", e.Index, e.RawKind)
}

func (e *MalformedEventError) ErrorKind() ErrorKind { return ErrKindMalformedEvent }

// BudgetExceededError means the PR summary alone does not fit the token budget.
type BudgetExceededError struct {
	SummaryTokens int
	Budget        int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("pr summary needs %d tokens but the context budget is %d", e.SummaryTokens, e.Budget)
}

func (e *BudgetExceededError) ErrorKind() ErrorKind { return ErrKindBudgetExceeded }

// SynthesisParseError means a model response did not match the expected grammar.
type SynthesisParseError struct {
	Attempt int
	Missing []string
	Reason  string
}

func (e *SynthesisParseError) Error() string {
	msg := "model response did not parse"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Missing) > 0 {
		msg += " (missing sections: " + strings.Join(e.Missing, ", ") + ")"
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("attempt %d: %s", e.Attempt, msg)
	}
	return msg
}

func (e *SynthesisParseError) ErrorKind() ErrorKind { return ErrKindSynthesisParse }

// SynthesisTimeoutError means a model call exceeded its deadline.
type SynthesisTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *SynthesisTimeoutError) Error() string {
	return fmt.Sprintf("model call exceeded %s deadline: %v", e.Timeout, e.Err)
}

func (e *SynthesisTimeoutError) Unwrap() error { return e.Err }

func (e *SynthesisTimeoutError) ErrorKind() ErrorKind { return ErrKindSynthesisTimeout }

// ConfigError is a configuration problem that aborts a run before any PR
// is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) ErrorKind() ErrorKind { return ErrKindConfig }
