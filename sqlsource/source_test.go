package sqlsource_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/ectopq/ectopq"
	"github.com/ectopq/ectopq/dialect"
	"github.com/ectopq/ectopq/internal/locksm"
	"github.com/ectopq/ectopq/job"
	"github.com/ectopq/ectopq/sqlsource"
)

func newSchema() sqlsource.Schema {
	return sqlsource.NewSchema("photos", "resize", "id")
}

func insertRow(ctx context.Context, t *testing.T, db *bun.DB, id string, lock *int64) {
	t.Helper()
	_, err := db.NewRaw(`INSERT INTO photos (id, url, ectopq_resize_lock) VALUES (?, ?, ?)`,
		id, "http://example.com/"+id, lock).Exec(ctx)
	if err != nil {
		t.Fatalf("insert row: %v", err)
	}
}

func readLock(ctx context.Context, t *testing.T, db *bun.DB, id string) *int64 {
	t.Helper()
	var lock *int64
	err := db.NewRaw(`SELECT ectopq_resize_lock FROM photos WHERE id = ?`, id).Scan(ctx, &lock)
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	return lock
}

func TestSourceReserveAndAck(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := uuid.NewString()
	lock := locksm.DefaultLock(time.Now())
	insertRow(ctx, t, db, id, &lock)

	src := sqlsource.New(db, dialect.CockroachDB{}, newSchema(), 5*time.Minute)

	jb, ok, err := src.Reserve(ctx)
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	if v, _ := jb.Value("id"); v != id {
		t.Fatalf("expected reserved id %q, got %v", id, v)
	}
	if got := readLock(ctx, t, db, id); got == nil || locksm.State(got, time.Now()) != job.InProgress {
		t.Fatalf("expected in-progress lock after reserve, got %v", got)
	}

	// A second Reserve must not see the same row again.
	if _, ok, err := src.Reserve(ctx); err != nil || ok {
		t.Fatalf("expected no second candidate, ok=%v err=%v", ok, err)
	}

	now := time.Now()
	jb.CompletedAt = &now
	if err := src.Ack(ctx, jb); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := readLock(ctx, t, db, id); got != nil {
		t.Fatalf("expected lock NULL after ack, got %v", *got)
	}
}

func TestSourceAckAbandons(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := uuid.NewString()
	lock := locksm.DefaultLock(time.Now())
	insertRow(ctx, t, db, id, &lock)

	src := sqlsource.New(db, dialect.CockroachDB{}, newSchema(), 5*time.Minute)
	jb, ok, err := src.Reserve(ctx)
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	if err := src.Ack(ctx, jb); err != nil {
		t.Fatalf("ack: %v", err)
	}
	got := readLock(ctx, t, db, id)
	if got == nil || *got != locksm.Abandoned {
		t.Fatalf("expected abandoned lock (-1), got %v", got)
	}
}

func TestSourceNackReschedules(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := uuid.NewString()
	lock := locksm.DefaultLock(time.Now())
	insertRow(ctx, t, db, id, &lock)

	src := sqlsource.New(db, dialect.CockroachDB{}, newSchema(), 5*time.Minute)
	jb, ok, err := src.Reserve(ctx)
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	jb.FailurePrivate = []byte(`{"attempts":1}`)
	if err := src.Nack(ctx, jb, 30*time.Second); err != nil {
		t.Fatalf("nack: %v", err)
	}
	got := readLock(ctx, t, db, id)
	if got == nil || locksm.State(got, time.Now()) != job.Delayed {
		t.Fatalf("expected delayed lock after nack, got %v", got)
	}
}

func TestSourceCancel(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	src := sqlsource.New(db, dialect.CockroachDB{}, newSchema(), 5*time.Minute)

	readyID := uuid.NewString()
	readyLock := locksm.DefaultLock(time.Now())
	insertRow(ctx, t, db, readyID, &readyLock)

	outcome, err := src.Cancel(ctx, []job.PKValue{{Name: "id", Value: readyID}})
	if err != nil {
		t.Fatalf("cancel ready: %v", err)
	}
	if outcome != ectopq.CancelOK {
		t.Fatalf("expected CancelOK for ready row, got %v", outcome)
	}

	inProgressID := uuid.NewString()
	ipLock := locksm.DefaultLock(time.Now())
	insertRow(ctx, t, db, inProgressID, &ipLock)
	if _, ok, err := src.Reserve(ctx); err != nil || !ok {
		t.Fatalf("reserve in-progress seed: ok=%v err=%v", ok, err)
	}
	outcome, err = src.Cancel(ctx, []job.PKValue{{Name: "id", Value: inProgressID}})
	if err != nil {
		t.Fatalf("cancel in-progress: %v", err)
	}
	if outcome != ectopq.CancelInProgress {
		t.Fatalf("expected CancelInProgress, got %v", outcome)
	}

	outcome, err = src.Cancel(ctx, []job.PKValue{{Name: "id", Value: uuid.NewString()}})
	if err != nil {
		t.Fatalf("cancel missing: %v", err)
	}
	if outcome != ectopq.CancelNotFound {
		t.Fatalf("expected CancelNotFound, got %v", outcome)
	}
}

func TestSourceStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now()

	ready := locksm.DefaultLock(now)
	insertRow(ctx, t, db, uuid.NewString(), &ready)

	delayed := locksm.DelayedLock(now, time.Hour)
	insertRow(ctx, t, db, uuid.NewString(), &delayed)

	abandoned := locksm.Abandoned
	insertRow(ctx, t, db, uuid.NewString(), &abandoned)

	insertRow(ctx, t, db, uuid.NewString(), nil) // finished

	src := sqlsource.New(db, dialect.CockroachDB{}, newSchema(), 5*time.Minute)
	counts, err := src.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if counts.Ready != 1 || counts.Delayed != 1 || counts.Abandoned != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestSourceFilterAbandoned(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	abandoned := locksm.Abandoned
	id := uuid.NewString()
	insertRow(ctx, t, db, id, &abandoned)
	ready := locksm.DefaultLock(time.Now())
	insertRow(ctx, t, db, uuid.NewString(), &ready)

	src := sqlsource.New(db, dialect.CockroachDB{}, newSchema(), 5*time.Minute)
	jobs, err := src.Filter(ctx, ectopq.SelectAbandoned)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 abandoned job, got %d", len(jobs))
	}
	if v, _ := jobs[0].Value("id"); v != id {
		t.Fatalf("expected abandoned id %q, got %v", id, v)
	}
}

func TestSourceResetStale(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now()
	stale := locksm.StaleBoundary(now) + 1
	id := uuid.NewString()
	insertRow(ctx, t, db, id, &stale)

	src := sqlsource.New(db, dialect.CockroachDB{}, newSchema(), 5*time.Minute)
	n, err := src.ResetStale(ctx)
	if err != nil {
		t.Fatalf("reset stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row reset, got %d", n)
	}
	got := readLock(ctx, t, db, id)
	if got == nil || locksm.State(got, time.Now()) != job.Ready {
		t.Fatalf("expected ready lock after reset, got %v", got)
	}
}
