// Package tui renders live batch progress in the terminal.
package tui

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spiffcs/prlens/internal/pipeline"
	"golang.org/x/term"
)

// ErrInterrupted is returned by Run when the user quit before the work
// finished.
var ErrInterrupted = errors.New("interrupted")

// Run starts the TUI and blocks until it completes.
func Run(events <-chan Event, opts ...ModelOption) error {
	model := NewModel(events, opts...)
	// Don't use alt screen - render inline
	p := tea.NewProgram(model)
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && !m.done {
		return ErrInterrupted
	}
	return nil
}

// ShouldUseTUI returns true if the TUI should be used based on environment.
func ShouldUseTUI() bool {
	// Check if stdout is a TTY
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}

	// Check for CI environment variables
	ciVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"GITLAB_CI",
		"BUILDKITE",
	}

	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return false
		}
	}

	return true
}

// SendEvent sends an event to the channel in a non-blocking manner.
func SendEvent(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
		// Non-blocking send - drop event if channel is full
	}
}

// SendTaskEvent is a convenience function for sending task events.
func SendTaskEvent(ch chan<- Event, task TaskID, status TaskStatus, opts ...TaskEventOption) {
	e := TaskEvent{
		Task:   task,
		Status: status,
	}
	for _, opt := range opts {
		opt(&e)
	}
	SendEvent(ch, e)
}

// TaskEventOption is a functional option for TaskEvent.
type TaskEventOption func(*TaskEvent)

// WithMessage sets the message on a TaskEvent.
func WithMessage(msg string) TaskEventOption {
	return func(e *TaskEvent) {
		e.Message = msg
	}
}

// WithCount sets the count on a TaskEvent.
func WithCount(count int) TaskEventOption {
	return func(e *TaskEvent) {
		e.Count = count
	}
}

// WithProgress sets the progress on a TaskEvent.
func WithProgress(progress float64) TaskEventOption {
	return func(e *TaskEvent) {
		e.Progress = progress
	}
}

// WithError sets the error on a TaskEvent.
func WithError(err error) TaskEventOption {
	return func(e *TaskEvent) {
		e.Error = err
	}
}

// EventBuffer returns a channel capacity that holds every event of a batch
// of n pull requests, so non-blocking sends never drop progress.
func EventBuffer(n int) int {
	// two PR events and one task event per PR, plus the fixed tasks
	return 3*n + 16
}

// BatchProgress adapts batch progress callbacks into TUI events.
func BatchProgress(ch chan<- Event) pipeline.ProgressFunc {
	return func(p pipeline.Progress) {
		pr := p.Ref.String()
		switch p.Stage {
		case pipeline.StageStarted:
			SendEvent(ch, PREvent{PR: pr, Status: StatusRunning})
			return
		case pipeline.StageDone:
			status := StatusComplete
			if p.Degraded {
				status = StatusDegraded
			}
			SendEvent(ch, PREvent{PR: pr, Status: status})
		case pipeline.StageFailed:
			SendEvent(ch, PREvent{PR: pr, Status: StatusError, Error: p.Err})
		case pipeline.StageCancelled:
			SendEvent(ch, PREvent{PR: pr, Status: StatusSkipped})
		}

		if p.Total == 0 {
			return
		}
		SendTaskEvent(ch, TaskAnalyze, StatusRunning,
			WithProgress(float64(p.Completed)/float64(p.Total)),
			WithMessage(fmt.Sprintf("%d/%d", p.Completed, p.Total)),
		)
	}
}
