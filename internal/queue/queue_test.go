package queue

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestPutNextOrder(t *testing.T) {
	q := New()
	q.Put(Item{ID: "1", Content: "first"})
	q.Put(Item{ID: "2", Content: "second"})

	ctx := context.Background()
	a, err := q.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := q.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "1" || b.ID != "2" {
		t.Errorf("expected FIFO order, got %s then %s", a.ID, b.ID)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, len=%d", q.Len())
	}
}

func TestNextBlocksUntilPut(t *testing.T) {
	q := New()
	done := make(chan Item, 1)
	go func() {
		item, err := q.Next(context.Background())
		if err != nil {
			t.Error(err)
		}
		done <- item
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put(Item{ID: "late"})

	select {
	case item := <-done:
		if item.ID != "late" {
			t.Errorf("got %q", item.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not wake after Put")
	}
}

func TestNextRespectsContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Next(ctx); err == nil {
		t.Fatal("expected context error from empty queue")
	}
}

func TestPeekChannelDoesNotDequeue(t *testing.T) {
	q := New()
	q.Put(Item{ID: "1", ChannelID: "a"})
	q.Put(Item{ID: "2", ChannelID: "b"})
	q.Put(Item{ID: "3", ChannelID: "a"})

	got := q.PeekChannel("a")
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("unexpected peek result: %+v", got)
	}
	if q.Len() != 3 {
		t.Errorf("peek must not consume, len=%d", q.Len())
	}
}

func TestPendingIDs(t *testing.T) {
	q := New()
	q.Put(Item{ID: "1"})
	q.Put(Item{ID: "2"})

	ids := q.PendingIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if _, ok := ids["1"]; !ok {
		t.Error("missing id 1")
	}
}

func TestPreviewEmpty(t *testing.T) {
	if got := Preview(nil, nil, time.UTC, 3); got != "" {
		t.Errorf("expected empty preview, got %q", got)
	}
}

func TestPreviewFormatting(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	items := []Item{
		{AuthorID: "1", AuthorName: "fallback", Content: "hello", Timestamp: ts},
	}
	alias := func(id string) string {
		if id == "1" {
			return "Maya"
		}
		return ""
	}

	got := Preview(items, alias, time.UTC, 3)
	want := "[MESSAGES AWAITING YOUR ATTENTION IN THIS CHANNEL]:\n- Maya: hello [2025-06-01T12:00:00Z]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPreviewOverflow(t *testing.T) {
	ts := time.Now()
	var items []Item
	for i := 0; i < 5; i++ {
		items = append(items, Item{AuthorName: "a", Content: "m", Timestamp: ts})
	}

	got := Preview(items, nil, time.UTC, 3)
	if !strings.HasSuffix(got, "- ...and 2 more message(s) waiting.") {
		t.Errorf("missing overflow note: %q", got)
	}
	if strings.Count(got, "\n") != 4 {
		t.Errorf("expected header + 3 entries + overflow, got %q", got)
	}
}
