package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davshaw/gengate/internal/core/domain"
	"github.com/davshaw/gengate/internal/platform/logger"
	"go.uber.org/zap"
)

// Status classifies one upstream poll response.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

var successStates = map[string]bool{
	"success":   true,
	"succeeded": true,
	"completed": true,
	"finished":  true,
}

var failureStates = map[string]bool{
	"failed":  true,
	"failure": true,
	"error":   true,
}

// ClassifyState maps an upstream state string to a Status. Providers
// disagree on terminal vocabulary, so both families are matched
// case-insensitively; anything unrecognized counts as pending.
func ClassifyState(state string) Status {
	s := strings.ToLower(strings.TrimSpace(state))
	if successStates[s] {
		return StatusSucceeded
	}
	if failureStates[s] {
		return StatusFailed
	}
	return StatusPending
}

// Snapshot is one poll of an upstream task.
type Snapshot struct {
	State   string
	Payload []byte
}

// TaskFailedError reports a terminal upstream failure with the
// provider's own reason.
type TaskFailedError struct {
	State  string
	Reason string
}

func (e *TaskFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("task failed (%s): %s", e.State, e.Reason)
	}
	return fmt.Sprintf("task failed (%s)", e.State)
}

// Poller drives a fixed-interval poll loop against an async upstream
// task until it reaches a terminal state or the attempt budget runs out.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Fetch       func(ctx context.Context) (*Snapshot, error)
}

// Wait blocks until the task succeeds, fails, the budget is exhausted
// (domain.ErrPollTimeout), or ctx is cancelled. Transient fetch errors
// consume an attempt and the loop continues.
func (p *Poller) Wait(ctx context.Context) (*Snapshot, error) {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.Interval):
		}

		snap, err := p.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Poll attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		switch ClassifyState(snap.State) {
		case StatusSucceeded:
			return snap, nil
		case StatusFailed:
			return nil, &TaskFailedError{
				State:  snap.State,
				Reason: failReason(snap.Payload),
			}
		}
	}
	return nil, domain.ErrPollTimeout
}
