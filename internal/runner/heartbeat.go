package runner

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bencher/internal/model"
)

// TimeoutTasks supervises the "heartbeat-timeout task" set from spec.md
// §4.5: one detached task per disconnected-but-non-terminal job, armed to
// apply the same B1/B2/S3 deadline transition (Failed or Canceled) the
// in-loop deadline uses. A golang.org/x/sync/errgroup.Group ties every task's lifetime to
// the server's shutdown context (SPEC_FULL.md §4.5).
type TimeoutTasks struct {
	jobs *Jobs
	log  *logrus.Entry

	group *errgroup.Group
	ctx   context.Context

	mu     sync.Mutex
	cancel map[model.JobID]context.CancelFunc
}

func NewTimeoutTasks(ctx context.Context, jobs *Jobs, log *logrus.Entry) *TimeoutTasks {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	group, gctx := errgroup.WithContext(ctx)
	return &TimeoutTasks{
		jobs:   jobs,
		log:    log,
		group:  group,
		ctx:    gctx,
		cancel: make(map[model.JobID]context.CancelFunc),
	}
}

// Arm schedules a timeout task for jobID: if nothing cancels it first, it
// waits heartbeatTimeout and then applies the deadline transition (spec.md
// §4.5 "on socket disconnect ... spawn a detached task that waits
// heartbeat_timeout"), using the B1/B2/S3 criterion to pick Failed vs.
// Canceled rather than assuming Canceled unconditionally.
func (t *TimeoutTasks) Arm(jobID model.JobID, heartbeatTimeout, heartbeatGrace time.Duration) {
	t.mu.Lock()
	if existing, ok := t.cancel[jobID]; ok {
		existing()
	}
	taskCtx, cancel := context.WithCancel(t.ctx)
	t.cancel[jobID] = cancel
	t.mu.Unlock()

	t.group.Go(func() error {
		defer func() {
			// A task replaced by a later Arm for the same job was canceled
			// by that Arm; leave the replacement's entry in place.
			if taskCtx.Err() == nil {
				t.Disarm(jobID)
			}
		}()
		select {
		case <-taskCtx.Done():
			return nil
		case <-time.After(heartbeatTimeout):
		}
		if _, err := t.jobs.HandleDeadlineTimeout(taskCtx, jobID, heartbeatTimeout, heartbeatGrace); err != nil {
			t.log.WithError(err).WithField("job_id", jobID).Warn("heartbeat-timeout task failed to transition job")
		}
		return nil
	})
}

// Disarm cancels jobID's pending timeout task, if any (a fresh heartbeat
// or socket reconnect arrived first).
func (t *TimeoutTasks) Disarm(jobID model.JobID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancel[jobID]; ok {
		cancel()
		delete(t.cancel, jobID)
	}
}

// Wait blocks until every supervised task has returned, used on graceful
// shutdown after the group's context is canceled.
func (t *TimeoutTasks) Wait() error {
	return t.group.Wait()
}

// RearmNonTerminal re-arms a timeout task for every non-terminal job found
// at process start (spec.md §3 "a process restart can re-arm them by
// scanning all non-terminal jobs"). Jobs still Created (never claimed by
// a runner) are skipped: there is no started/last_heartbeat clock running
// for them yet.
func RearmNonTerminal(ctx context.Context, jobs *Jobs, tasks *TimeoutTasks, heartbeatTimeout, heartbeatGrace time.Duration, log *logrus.Entry) error {
	rows, err := ScanNonTerminal(ctx, jobs.Store)
	if err != nil {
		return err
	}
	for _, j := range rows {
		if j.Status == model.JobCreated {
			continue
		}
		tasks.Arm(j.ID, heartbeatTimeout, heartbeatGrace)
	}
	if log != nil {
		log.WithField("count", len(rows)).Info("re-armed heartbeat-timeout tasks on startup")
	}
	return nil
}
