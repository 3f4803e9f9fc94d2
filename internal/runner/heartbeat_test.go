package runner

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"bencher/internal/model"
	"bencher/internal/store"
)

// TestArmThenDisarmNeverFires checks that Disarm cancels a task before its
// timeout elapses, so the conditional UPDATE never runs.
func TestArmThenDisarmNeverFires(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	jobs := &Jobs{Store: store.NewForTest(db)}
	tasks := NewTimeoutTasks(context.Background(), jobs, nil)

	tasks.Arm(model.JobID(1), time.Hour, 10*time.Second)
	tasks.Disarm(model.JobID(1))

	// No DB expectations were set; Wait should return promptly with no
	// pending work since the task observed cancellation first.
	done := make(chan error, 1)
	go func() { done <- tasks.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after Disarm")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB interaction after disarm: %v", err)
	}
}

// TestArmFiresTimeoutTransition checks that an un-disarmed task applies
// the B2 Canceled transition (started, well past timeout+grace) once its
// timeout elapses.
func TestArmFiresTimeoutTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	started := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "uuid", "project_id", "runner_id", "status", "config_json", "started", "last_heartbeat", "ingestion_failed", "created", "modified"}).
		AddRow(5, testUUID(1), 1, 3, string(model.JobRunning), "{}", started, started, false, time.Now(), time.Now())
	mock.ExpectQuery("FROM job WHERE id = \\?").WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE job SET status = \\?").
		WithArgs(string(model.JobCanceled), int64(5), string(model.JobRunning)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	jobs := &Jobs{Store: store.NewForTest(db)}
	tasks := NewTimeoutTasks(context.Background(), jobs, nil)

	tasks.Arm(model.JobID(5), 10*time.Millisecond, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- tasks.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after timeout fired")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestRearmNonTerminalSkipsCreated checks that only Claimed/Running jobs
// get a timeout task armed on startup (spec.md §3: Created jobs have no
// started/last_heartbeat clock running yet).
func TestRearmNonTerminalSkipsCreated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "uuid", "project_id", "runner_id", "status", "config_json", "started", "last_heartbeat", "ingestion_failed", "created", "modified"}).
		AddRow(1, testUUID(1), 1, nil, string(model.JobCreated), "{}", nil, nil, false, time.Now(), time.Now()).
		AddRow(2, testUUID(2), 1, 3, string(model.JobRunning), "{}", time.Now(), time.Now(), false, time.Now(), time.Now())
	mock.ExpectQuery("FROM job WHERE status IN").WillReturnRows(rows)

	jobs := &Jobs{Store: store.NewForTest(db)}
	tasks := NewTimeoutTasks(context.Background(), jobs, nil)

	if err := RearmNonTerminal(context.Background(), jobs, tasks, time.Hour, 10*time.Second, nil); err != nil {
		t.Fatalf("RearmNonTerminal() error = %v", err)
	}

	tasks.mu.Lock()
	armed := len(tasks.cancel)
	_, hasJob2 := tasks.cancel[model.JobID(2)]
	_, hasJob1 := tasks.cancel[model.JobID(1)]
	tasks.mu.Unlock()

	if armed != 1 || !hasJob2 || hasJob1 {
		t.Fatalf("RearmNonTerminal armed %d tasks (job1=%v, job2=%v), want only job 2", armed, hasJob1, hasJob2)
	}

	for id := range tasks.cancel {
		tasks.Disarm(id)
	}
	tasks.Wait()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
