package dialect

import (
	"errors"
	"testing"
)

func TestPostgresLocksCandidates(t *testing.T) {
	if clause := (Postgres{}).ReserveLockClause(); clause != "FOR UPDATE SKIP LOCKED" {
		t.Fatalf("expected FOR UPDATE SKIP LOCKED, got %q", clause)
	}
}

func TestCockroachDBDoesNotLockCandidates(t *testing.T) {
	if clause := (CockroachDB{}).ReserveLockClause(); clause != "" {
		t.Fatalf("cockroachdb must not take a row lock, got %q", clause)
	}
}

func TestPostgresNeverRetries(t *testing.T) {
	if (Postgres{}).Retryable(errors.New("any error at all")) {
		t.Fatal("postgres should never ask for a retry")
	}
}

func TestCockroachDBRetriesSerializationFailures(t *testing.T) {
	d := CockroachDB{}
	if d.Retryable(nil) {
		t.Fatal("nil error is not retryable")
	}
	if !d.Retryable(errors.New(`ERROR: restart transaction: TransactionRetryWithProtoRefreshError: ... (SQLSTATE 40001)`)) {
		t.Fatal("expected a 40001 serialization failure to be retryable")
	}
	if d.Retryable(errors.New("syntax error near SELECT")) {
		t.Fatal("a plain syntax error must not be treated as retryable")
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("postgres"); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse("cockroachdb"); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse("oracle"); !errors.Is(err, ErrUnknownDialect) {
		t.Fatalf("expected ErrUnknownDialect, got %v", err)
	}
}
