package poster

import (
	"errors"
	"fmt"
)

var (
	// ErrRunAlreadyActive is returned by admission while another run is running.
	ErrRunAlreadyActive = errors.New("a run is already in progress")

	// ErrSessionAcquisition is fatal: the browser session did not start or never became ready.
	ErrSessionAcquisition = errors.New("browser session acquisition failed")

	// ErrMediaUnavailable is fatal: the media pool was empty when a job needed it.
	ErrMediaUnavailable = errors.New("no media available")

	// ErrComposer is fatal: a composer step outside the scheduled-publish path failed.
	ErrComposer = errors.New("composer step failed")

	// ErrScheduleEncoding skips one job.
	ErrScheduleEncoding = errors.New("schedule encoding failed")

	// ErrContentGeneration degrades the job to placeholder text.
	ErrContentGeneration = errors.New("content generation failed")

	// ErrCancelled marks a cooperative stop. It is a successful terminal state.
	ErrCancelled = errors.New("run cancelled")
)

// JobError records a recoverable failure absorbed inside one job.
type JobError struct {
	Index int
	Kind  error
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d: %v: %v", e.Index+1, e.Kind, e.Err)
}

func (e *JobError) Unwrap() []error { return []error{e.Kind, e.Err} }
