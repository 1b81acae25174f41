// Package poll drives submit-then-poll vendor jobs to a terminal state.
package poll

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of a vendor job.
type State string

const (
	Submitted  State = "submitted"
	Processing State = "processing"
	Completed  State = "completed"
	Failed     State = "failed"
)

// Terminal reports whether no further polling can change the state.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// NormalizeState maps vendor status strings onto State. Unknown values are
// treated as still processing.
func NormalizeState(vendor string) State {
	switch strings.ToLower(strings.TrimSpace(vendor)) {
	case "queued", "pending", "submitted", "starting", "created":
		return Submitted
	case "completed", "complete", "succeeded", "success", "done":
		return Completed
	case "failed", "failure", "error", "canceled", "cancelled", "aborted":
		return Failed
	default:
		return Processing
	}
}

// Job is the locally tracked view of one vendor job. It lives only for the
// duration of one Run.
type Job struct {
	ID            string
	State         State
	ContentURL    string
	FailureReason string
	Raw           map[string]any
}

// CheckFunc performs one status request.
type CheckFunc func(ctx context.Context) (*Job, error)

// FailedError is returned when the vendor reports a terminal failure.
type FailedError struct {
	JobID  string
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// TimeoutError is returned when MaxAttempts checks pass without a terminal
// state.
type TimeoutError struct {
	JobID    string
	Attempts int
	Last     State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s still %s after %d status checks", e.JobID, e.Last, e.Attempts)
}

const unknownReason = "unknown error"

// Defaults used by New.
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxInterval = 10 * time.Second
	DefaultDoubleEvery = 5
	DefaultMaxAttempts = 60
)

// Poller runs the status loop. The zero value is not usable; use New.
type Poller struct {
	Interval    time.Duration
	MaxInterval time.Duration
	DoubleEvery int
	MaxAttempts int

	// Sleep waits between checks. Tests replace it to run without delay.
	Sleep func(ctx context.Context, d time.Duration) error

	// Transient classifies check errors that should count as an attempt
	// and be retried on the next tick. Nil means every check error is fatal.
	Transient func(error) bool

	// OnCheck is called after every status check.
	OnCheck func(attempt int, job *Job, err error)
}

// New returns a Poller with the default schedule: 2s doubling every five
// attempts, capped at 10s, at most 60 checks.
func New() *Poller {
	return &Poller{
		Interval:    DefaultInterval,
		MaxInterval: DefaultMaxInterval,
		DoubleEvery: DefaultDoubleEvery,
		MaxAttempts: DefaultMaxAttempts,
		Sleep:       SleepWithContext,
	}
}

// Backoff returns the delay before the given zero-based attempt.
func (p *Poller) Backoff(attempt int) time.Duration {
	backoff := p.Interval
	if p.DoubleEvery > 0 {
		for i := 0; i < attempt/p.DoubleEvery; i++ {
			backoff *= 2
			if p.MaxInterval > 0 && backoff >= p.MaxInterval {
				return p.MaxInterval
			}
		}
	}
	if p.MaxInterval > 0 && backoff > p.MaxInterval {
		return p.MaxInterval
	}
	return backoff
}

// Run polls jobID until it completes, fails or runs out of attempts. A
// completed job is returned as is; the caller fetches its content.
func (p *Poller) Run(ctx context.Context, jobID string, check CheckFunc) (*Job, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepWithContext
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	last := Submitted
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return nil, err
		}

		job, err := check(ctx)
		if p.OnCheck != nil {
			p.OnCheck(attempt+1, job, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if p.Transient != nil && p.Transient(err) {
				continue
			}
			return nil, fmt.Errorf("status check for job %s: %w", jobID, err)
		}
		if job == nil {
			return nil, fmt.Errorf("status check for job %s returned no job", jobID)
		}
		if job.ID == "" {
			job.ID = jobID
		}

		last = job.State
		switch job.State {
		case Completed:
			return job, nil
		case Failed:
			reason := job.FailureReason
			if reason == "" {
				reason = unknownReason
			}
			return nil, &FailedError{JobID: job.ID, Reason: reason}
		}
	}

	return nil, &TimeoutError{JobID: jobID, Attempts: maxAttempts, Last: last}
}

// SleepWithContext waits for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
