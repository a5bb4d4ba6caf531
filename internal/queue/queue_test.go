package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/versery-api/internal/database/migrations"
	"github.com/jmylchreest/versery-api/internal/repository"
	_ "github.com/tursodatabase/go-libsql"
)

func setupJobs(t *testing.T) repository.JobRepository {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewSQLiteJobRepository(db)
}

func TestDBQueue_RoundTrip(t *testing.T) {
	q := NewDBQueue(setupJobs(t), time.Minute)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "stage-a"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(ctx, "stage-b"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	d, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if d == nil || d.StageID != "stage-a" {
		t.Fatalf("Next() = %+v, want stage-a", d)
	}
	if err := d.Ack(ctx); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}

	d, err = q.Next(ctx)
	if err != nil || d == nil || d.StageID != "stage-b" {
		t.Fatalf("Next() = %+v, %v; want stage-b", d, err)
	}
	q.retryDelay = 0
	if err := d.Nack(ctx, errors.New("try later")); err != nil {
		t.Fatalf("Nack() error = %v", err)
	}

	d, err = q.Next(ctx)
	if err != nil || d == nil || d.StageID != "stage-b" {
		t.Fatalf("Next() after Nack = %+v, %v; want stage-b redelivered", d, err)
	}

	d, err = q.Next(ctx)
	if err != nil || d != nil {
		t.Errorf("Next() on empty queue = %+v, %v; want nil, nil", d, err)
	}
}

func TestMemory(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	_ = q.Enqueue(ctx, "s1")
	d, _ := q.Next(ctx)
	if d == nil || d.StageID != "s1" {
		t.Fatalf("Next() = %+v", d)
	}
	_ = d.Nack(ctx, nil)
	if got := q.Pending(); len(got) != 1 || got[0] != "s1" {
		t.Errorf("Pending() after Nack = %v", got)
	}
	d, _ = q.Next(ctx)
	_ = d.Ack(ctx)
	if got := q.Acked(); len(got) != 1 {
		t.Errorf("Acked() = %v", got)
	}

	_ = q.Close()
	if err := q.Enqueue(ctx, "s2"); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() after Close error = %v, want ErrClosed", err)
	}
}

func TestDelivery_NilSettlers(t *testing.T) {
	d := &Delivery{StageID: "x"}
	if err := d.Ack(context.Background()); err != nil {
		t.Errorf("Ack() error = %v", err)
	}
	if err := d.Nack(context.Background(), errors.New("x")); err != nil {
		t.Errorf("Nack() error = %v", err)
	}
}
