package memqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/ectopq/ectopq"
	"github.com/ectopq/ectopq/job"
	"github.com/ectopq/ectopq/memqueue"
	"github.com/ectopq/ectopq/task"
)

func TestSourceEnqueueReserveAck(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", 5*time.Minute)

	tk, _ := task.New("run", map[string]string{"path": "a.jpg"})
	if _, err := s.Enqueue(ctx, tk, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	jb, ok, err := s.Reserve(ctx)
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	if jb.Task.Name != "run" {
		t.Fatalf("unexpected task name %q", jb.Task.Name)
	}

	if _, ok, err := s.Reserve(ctx); err != nil || ok {
		t.Fatalf("expected no second candidate, ok=%v err=%v", ok, err)
	}

	now := time.Now()
	jb.CompletedAt = &now
	if err := s.Ack(ctx, jb); err != nil {
		t.Fatalf("ack: %v", err)
	}

	counts, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if counts.Total != 0 {
		t.Fatalf("expected finished row excluded from status, got %+v", counts)
	}
}

func TestSourceEnqueueWithDelay(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", 5*time.Minute)

	tk, _ := task.New("run", nil)
	if _, err := s.Enqueue(ctx, tk, time.Hour); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, ok, err := s.Reserve(ctx); err != nil || ok {
		t.Fatalf("expected delayed row to not be reservable, ok=%v err=%v", ok, err)
	}

	counts, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if counts.Delayed != 1 {
		t.Fatalf("expected 1 delayed row, got %+v", counts)
	}
}

func TestSourceAckAbandonsWithoutCompletedAt(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", 5*time.Minute)

	tk, _ := task.New("run", nil)
	s.Enqueue(ctx, tk, 0)
	jb, _, _ := s.Reserve(ctx)

	if err := s.Ack(ctx, jb); err != nil {
		t.Fatalf("ack: %v", err)
	}
	counts, _ := s.Status(ctx)
	if counts.Abandoned != 1 {
		t.Fatalf("expected 1 abandoned row, got %+v", counts)
	}
}

func TestSourceNackReschedules(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", 5*time.Minute)

	tk, _ := task.New("run", nil)
	s.Enqueue(ctx, tk, 0)
	jb, _, _ := s.Reserve(ctx)
	jb.FailurePrivate = []byte(`{"attempts":1}`)

	if err := s.Nack(ctx, jb, time.Hour); err != nil {
		t.Fatalf("nack: %v", err)
	}
	counts, _ := s.Status(ctx)
	if counts.Delayed != 1 {
		t.Fatalf("expected 1 delayed row after nack, got %+v", counts)
	}
}

func TestSourceCancel(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", 5*time.Minute)

	tk, _ := task.New("run", nil)
	jb, _ := s.Enqueue(ctx, tk, 0)

	outcome, err := s.Cancel(ctx, jb.Private)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome != ectopq.CancelOK {
		t.Fatalf("expected CancelOK, got %v", outcome)
	}

	outcome, err = s.Cancel(ctx, []job.PKValue{{Name: "id", Value: uint64(999)}})
	if err != nil {
		t.Fatalf("cancel missing: %v", err)
	}
	if outcome != ectopq.CancelNotFound {
		t.Fatalf("expected CancelNotFound, got %v", outcome)
	}
}

func TestSourceCancelInProgress(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", 5*time.Minute)

	tk, _ := task.New("run", nil)
	jb, _ := s.Enqueue(ctx, tk, 0)
	if _, ok, err := s.Reserve(ctx); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}

	outcome, err := s.Cancel(ctx, jb.Private)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome != ectopq.CancelInProgress {
		t.Fatalf("expected CancelInProgress, got %v", outcome)
	}
}

func TestSourceFilterAbandoned(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", 5*time.Minute)

	tk, _ := task.New("run", nil)
	jb, _ := s.Enqueue(ctx, tk, 0)
	reserved, _, _ := s.Reserve(ctx)
	_ = reserved
	if err := s.Ack(ctx, jb); err != nil {
		t.Fatalf("ack: %v", err)
	}

	jobs, err := s.Filter(ctx, ectopq.SelectAbandoned)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 abandoned job, got %d", len(jobs))
	}
}

func TestSourceResetStale(t *testing.T) {
	ctx := context.Background()
	s := memqueue.New("resize", time.Millisecond)

	tk, _ := task.New("run", nil)
	s.Enqueue(ctx, tk, 0)
	if _, ok, err := s.Reserve(ctx); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}

	time.Sleep(5 * time.Millisecond)

	n, err := s.ResetStale(ctx)
	if err != nil {
		t.Fatalf("reset stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row reset, got %d", n)
	}
	counts, _ := s.Status(ctx)
	if counts.Ready != 1 {
		t.Fatalf("expected 1 ready row after reset, got %+v", counts)
	}
}
