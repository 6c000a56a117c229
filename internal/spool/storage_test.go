package spool

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func setupStorage(t *testing.T) *BoltStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "spool.db")
	storage, err := NewBoltStorage(dbPath)
	if err != nil {
		t.Fatalf("NewBoltStorage() error = %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func testMessage(id, campaignID string) *Message {
	return &Message{
		ID:           id,
		CampaignID:   campaignID,
		SubscriberID: "s-1",
		To:           "jane@example.com",
		Subject:      "Hello jane",
		HTML:         "<p>Hello jane</p>",
	}
}

func TestBoltStorage_EnqueueGetDequeue(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	msg := testMessage("m-1", "c-1")
	if err := storage.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if msg.Status != StatusPending {
		t.Errorf("Enqueue() Status = %v, want pending", msg.Status)
	}

	got, err := storage.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil")
	}
	if got.To != "jane@example.com" || got.Subject != "Hello jane" {
		t.Errorf("Get() = %+v", got)
	}

	notFound, err := storage.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if notFound != nil {
		t.Error("Get() expected nil for nonexistent message")
	}

	dequeued, err := storage.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if dequeued == nil {
		t.Fatal("Dequeue() returned nil")
	}
	if dequeued.ID != "m-1" {
		t.Errorf("Dequeue().ID = %v, want m-1", dequeued.ID)
	}
	if dequeued.Status != StatusSending {
		t.Errorf("Dequeue().Status = %v, want sending", dequeued.Status)
	}

	empty, err := storage.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if empty != nil {
		t.Error("Dequeue() on drained spool should return nil")
	}
}

func TestBoltStorage_DequeueOrder(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	for _, id := range []string{"m-1", "m-2", "m-3"} {
		if err := storage.Enqueue(ctx, testMessage(id, "c-1")); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	for _, want := range []string{"m-1", "m-2", "m-3"} {
		got, err := storage.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if got == nil || got.ID != want {
			t.Fatalf("Dequeue() = %v, want %s", got, want)
		}
	}
}

func TestBoltStorage_DeferredRetry(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	msg := testMessage("m-1", "c-1")
	if err := storage.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	dequeued, err := storage.Dequeue(ctx)
	if err != nil || dequeued == nil {
		t.Fatalf("Dequeue() = %v, %v", dequeued, err)
	}

	// defer far in the future; must not be dequeued
	dequeued.Status = StatusDeferred
	dequeued.RetryCount = 1
	dequeued.LastError = "450 try again later"
	dequeued.NextRetryAt = time.Now().Add(time.Hour)
	if err := storage.Update(ctx, dequeued); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if got, _ := storage.Dequeue(ctx); got != nil {
		t.Errorf("Dequeue() returned %v before retry time", got)
	}

	// move the retry time into the past
	dequeued.NextRetryAt = time.Now().Add(-time.Minute)
	if err := storage.Update(ctx, dequeued); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := storage.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got == nil {
		t.Fatal("Dequeue() returned nil for due retry")
	}
	if got.RetryCount != 1 || got.LastError == "" {
		t.Errorf("Dequeue() = %+v, retry state lost", got)
	}
	if got.Status != StatusSending {
		t.Errorf("Dequeue().Status = %v, want sending", got.Status)
	}
}

func TestBoltStorage_MoveToDeadLetter(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	msg := testMessage("m-1", "c-1")
	if err := storage.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	dequeued, _ := storage.Dequeue(ctx)

	dequeued.LastError = "550 no such user"
	if err := storage.MoveToDeadLetter(ctx, dequeued); err != nil {
		t.Fatalf("MoveToDeadLetter() error = %v", err)
	}

	got, err := storage.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("Status = %v, want failed", got.Status)
	}

	stats, err := storage.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Failed != 1 || stats.Total != 1 {
		t.Errorf("Stats() = %+v, want 1 failed of 1", stats)
	}
}

func TestBoltStorage_UndeliveredForCampaign(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	for _, id := range []string{"m-1", "m-2"} {
		if err := storage.Enqueue(ctx, testMessage(id, "c-1")); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	if err := storage.Enqueue(ctx, testMessage("m-3", "c-2")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	count, err := storage.UndeliveredForCampaign(ctx, "c-1")
	if err != nil {
		t.Fatalf("UndeliveredForCampaign() error = %v", err)
	}
	if count != 2 {
		t.Errorf("UndeliveredForCampaign(c-1) = %d, want 2", count)
	}

	// deliver one of them
	first, _ := storage.Dequeue(ctx)
	first.Status = StatusSent
	if err := storage.Update(ctx, first); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	count, err = storage.UndeliveredForCampaign(ctx, "c-1")
	if err != nil {
		t.Fatalf("UndeliveredForCampaign() error = %v", err)
	}
	if count != 1 {
		t.Errorf("UndeliveredForCampaign(c-1) = %d, want 1", count)
	}
}

func TestBoltStorage_Stats(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	for _, id := range []string{"m-1", "m-2", "m-3"} {
		if err := storage.Enqueue(ctx, testMessage(id, "c-1")); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}

	sent, _ := storage.Dequeue(ctx)
	sent.Status = StatusSent
	if err := storage.Update(ctx, sent); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stats, err := storage.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Pending != 2 || stats.Sent != 1 || stats.Total != 3 {
		t.Errorf("Stats() = %+v, want 2 pending, 1 sent, 3 total", stats)
	}
}

func TestBoltStorage_Delete(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	if err := storage.Enqueue(ctx, testMessage("m-1", "c-1")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := storage.Delete(ctx, "m-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := storage.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Error("message still present after Delete()")
	}
	if dequeued, _ := storage.Dequeue(ctx); dequeued != nil {
		t.Error("Dequeue() returned deleted message")
	}
}
