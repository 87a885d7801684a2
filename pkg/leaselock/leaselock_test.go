package leaselock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if s, ok := dest[0].(*string); ok {
			*s = r.key
		}
	}
	return nil
}

type fakeDB struct {
	rows     []fakeRow
	queries  []string
	execs    []string
	execArgs [][]any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	if len(f.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	r := f.rows[0]
	f.rows = f.rows[1:]
	return r
}

func TestAcquireAndRelease(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{key: "ecc:demo"}}}
	c := &Client{db: db}

	lease, err := c.Acquire(context.Background(), "ecc:demo", Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.Key != "ecc:demo" {
		t.Errorf("lease key = %q", lease.Key)
	}
	if lease.Token == "" {
		t.Error("lease token is empty")
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("expected 1 release exec, got %d", len(db.execs))
	}
	select {
	case <-lease.Context.Done():
	case <-time.After(time.Second):
		t.Error("lease context not cancelled after release")
	}
}

func TestAcquireBusy(t *testing.T) {
	db := &fakeDB{} // no rows: the upsert matched a live holder
	c := &Client{db: db}

	_, err := c.Acquire(context.Background(), "ecc:demo", Options{TTL: time.Minute})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestAcquireEmptyKey(t *testing.T) {
	c := &Client{db: &fakeDB{}}
	if _, err := c.Acquire(context.Background(), "", Options{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestLostLeaseCancelsContext(t *testing.T) {
	// First row answers the acquire, then renewals see no matching row.
	db := &fakeDB{rows: []fakeRow{{key: "ecc:demo"}}}
	c := &Client{db: db}

	lease, err := c.Acquire(context.Background(), "ecc:demo", Options{
		TTL:        40 * time.Millisecond,
		RenewEvery: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release(context.Background())

	select {
	case <-lease.Context.Done():
		if cause := context.Cause(lease.Context); !errors.Is(cause, ErrLost) {
			t.Errorf("cause = %v, want ErrLost", cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lease context not cancelled after lost renewal")
	}
}
