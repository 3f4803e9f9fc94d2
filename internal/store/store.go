// Package store is the storage substrate (spec.md §4.1): a single SQLite
// file reached through a read pool, a write pool, and one exclusive writer
// mutex, with mandatory PRAGMAs applied on every connection and migrations
// run on the writer before any pool is handed out.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/danjacques/gofslock/fslock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bencher/internal/apierrors"
)

// acquireTimeout bounds how long a caller waits for a pooled connection
// or the writer mutex (§4.1).
const acquireTimeout = 15 * time.Second

// Store is the storage substrate handed to every other component.
// It is the only thing in the process that knows the DB is SQLite.
type Store struct {
	path string
	log  *logrus.Entry

	readPool  *sql.DB
	writePool *sql.DB

	// writer serializes all mutating operations (§4.1, §5). It is held
	// for the duration of a single UPDATE or transaction and never across
	// an await on non-DB I/O.
	writer sync.Mutex

	// processLock is a cross-process advisory lock held for the lifetime
	// of the Store, guarding against a second bencherd process opening
	// the same DB file as a second writer.
	processLock fslock.Handle
}

// Options configures Open.
type Options struct {
	Path         string
	MaxPoolConns int
	BusyTimeout  time.Duration
	Logger       *logrus.Entry
}

func clampPoolSize(requested int) int {
	n := requested
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}

// Open creates the DB directory and its tmp sibling, takes the
// cross-process advisory lock, opens the write pool (size 1, since
// SQLite only ever has one writer connection in this design) and the
// read pool, runs migrations on the writer, and returns a ready Store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating db directory %q", dir)
	}

	// A temp-file directory sibling to the DB file, advertised to the
	// SQLite engine before any connection opens (§4.1).
	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating sqlite tmp directory %q", tmpDir)
	}
	if err := os.Setenv("SQLITE_TMPDIR", tmpDir); err != nil {
		return nil, errors.Wrap(err, "setting SQLITE_TMPDIR")
	}

	lockPath := opts.Path + ".lock"
	lock, err := fslock.Lock(lockPath)
	if err != nil {
		return nil, errors.Wrapf(err, "acquiring process lock %q (another bencherd running against this db?)", lockPath)
	}

	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	dsn := dsnWithPragmas(opts.Path, busyTimeout)

	writePool, err := sql.Open("sqlite3", dsn)
	if err != nil {
		lock.Unlock()
		return nil, errors.Wrap(err, "opening write pool")
	}
	writePool.SetMaxOpenConns(1)

	if err := runMigrations(opts.Path); err != nil {
		writePool.Close()
		lock.Unlock()
		return nil, err
	}

	readPool, err := sql.Open("sqlite3", dsn)
	if err != nil {
		writePool.Close()
		lock.Unlock()
		return nil, errors.Wrap(err, "opening read pool")
	}
	readPool.SetMaxOpenConns(clampPoolSize(opts.MaxPoolConns))

	return &Store{
		path:        opts.Path,
		log:         opts.Logger,
		readPool:    readPool,
		writePool:   writePool,
		processLock: lock,
	}, nil
}

// dsnWithPragmas builds a mattn/go-sqlite3 DSN that applies the three
// mandatory session-level directives from §4.1 on every new connection:
// WAL journaling, a busy-wait budget, and synchronous=NORMAL.
func dsnWithPragmas(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=on",
		path, busyTimeout.Milliseconds(),
	)
}

// Close releases both pools and the process-level lock.
func (s *Store) Close() error {
	var firstErr error
	if err := s.readPool.Close(); err != nil {
		firstErr = err
	}
	if err := s.writePool.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.processLock.Unlock()
	return firstErr
}

// Reader returns a read-pool connection handle, bounded by acquireTimeout.
func (s *Store) Reader(ctx context.Context) (*sql.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	conn, err := s.readPool.Conn(ctx)
	if err != nil {
		return nil, classifyAcquireErr(err)
	}
	return conn, nil
}

// WriteTx runs fn under the exclusive writer mutex inside a single SQLite
// transaction. fn's error, if any, rolls the transaction back; the writer
// mutex is released before WriteTx returns either way. This is the single
// choke point spec.md §4.1/§5 describe: the writer mutex is never held
// across non-DB I/O, because fn only ever does DB work here.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	if err := s.acquireWriter(lockCtx); err != nil {
		return err
	}
	defer s.writer.Unlock()

	tx, err := s.writePool.BeginTx(ctx, nil)
	if err != nil {
		return ClassifyError(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return ClassifyError(err)
	}
	if err := tx.Commit(); err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (s *Store) acquireWriter(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.writer.Lock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The goroutine above still acquires the lock eventually; a second
		// goroutine releases it as soon as it does, so a timed-out caller
		// never leaves the writer mutex held.
		go func() {
			<-done
			s.writer.Unlock()
		}()
		return apierrors.New(apierrors.KindStorageBusy, "timed out waiting for writer mutex")
	}
}

// NewForTest builds a Store directly around an already-open *sql.DB (a
// sqlmock-backed one, typically), bypassing Open's file/lock/migration
// setup. Exported for other packages' DB-layer tests, matching the
// teacher corpus's go-sqlmock usage.
func NewForTest(db *sql.DB) *Store {
	return &Store{writePool: db, readPool: db, log: logrus.NewEntry(logrus.StandardLogger())}
}

func classifyAcquireErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.New(apierrors.KindStorageBusy, "timed out acquiring pooled connection")
	}
	return apierrors.Internal(err, "acquiring pooled connection")
}
