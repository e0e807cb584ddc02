package elektroid

import (
	"sync"
	"time"
)

// minDialogTimeMS is MIN_TIME_UNTIL_DIALOG_RESPONSE from progress.c: a
// progress UI must stay visible at least this long once shown, so a
// near-instant transfer does not flash a dialog open and closed.
const minDialogTimeMS = 1000

// ProgressFunc receives updates during a long-running transfer. frac is in
// [0,1]; status is a short human-readable phase description. Returning
// false requests cancellation, which JobControl.Cancel also triggers.
type ProgressFunc func(frac float64, status string) (keepGoing bool)

// JobControl coordinates a cancellable background transfer with a caller
// that wants to observe progress and, optionally, a UI that must not
// flash. Grounded on struct job_control / progress.c's worker-thread
// model: progress_start spawns the worker, progress_stop_running_sysex
// flips its sysex_transfer's active flag, and progress_join_thread waits
// for it while obeying the minimum-dialog-time rule.
type JobControl struct {
	mu       sync.Mutex
	active   bool
	status   float64
	message  string
	transfer *SysExTransfer

	shownAt time.Time
	done    chan error
}

// NewJobControl creates a JobControl tied to transfer, whose active flag
// Cancel will clear.
func NewJobControl(transfer *SysExTransfer) *JobControl {
	return &JobControl{active: true, transfer: transfer, shownAt: time.Now(), done: make(chan error, 1)}
}

// Update records progress from the worker goroutine. It is safe to call
// from any goroutine.
func (j *JobControl) Update(frac float64, message string) {
	j.mu.Lock()
	j.status = frac
	j.message = message
	j.mu.Unlock()
}

// Progress returns the last reported fraction and message.
func (j *JobControl) Progress() (float64, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, j.message
}

// Cancel requests the underlying transfer stop. Equivalent to
// progress_stop_running_sysex: it does not block for the worker to notice.
func (j *JobControl) Cancel() {
	j.transfer.Cancel()
	j.mu.Lock()
	j.active = false
	j.mu.Unlock()
}

// Finish records the worker's terminal error (nil on success) and makes it
// available to Wait.
func (j *JobControl) Finish(err error) {
	j.done <- err
}

// Wait blocks for Finish, then sleeps out the remainder of minDialogTimeMS
// since the job started so a caller driving a visible progress dialog
// never dismisses it before a viewer could register it appeared —
// progress_usleep_since's guarantee.
func (j *JobControl) Wait() error {
	err := <-j.done

	elapsed := time.Since(j.shownAt)
	if remain := minDialogTimeMS*time.Millisecond - elapsed; remain > 0 {
		time.Sleep(remain)
	}
	return err
}
