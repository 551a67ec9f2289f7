package store

import (
	"context"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "conv.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndFetchMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	msgs := []Message{
		{ID: "m1", InteractionID: "i1", ChannelID: "c1", AuthorID: "u1", Role: "user", Content: "hello", Timestamp: 100},
		{ID: "m2", InteractionID: "i1", ChannelID: "c1", AuthorID: "bot", Role: "assistant", Content: "hi!", Timestamp: 200},
		{ID: "m3", InteractionID: "i2", ChannelID: "c2", AuthorID: "u1", Role: "user", Content: "elsewhere", Timestamp: 300},
	}
	for _, m := range msgs {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("save message %s: %v", m.ID, err)
		}
	}

	got, err := s.MessagesFromChannels(ctx, []string{"c1"}, 0, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages in c1, got %d", len(got))
	}

	// Cutoff excludes older rows.
	got, err = s.MessagesFromChannels(ctx, []string{"c1", "c2"}, 150, 10)
	if err != nil {
		t.Fatalf("fetch with cutoff: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages at ts>=150, got %d", len(got))
	}
	for _, m := range got {
		if m.Timestamp < 150 {
			t.Errorf("message %s violates cutoff: ts=%d", m.ID, m.Timestamp)
		}
	}
}

func TestMessagesLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		m := Message{ChannelID: "c1", AuthorID: "u1", Role: "user",
			Content: "msg", Timestamp: int64(100 + i)}
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.MessagesFromChannels(ctx, []string{"c1"}, 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(got))
	}
	// Most recent rows are kept.
	for _, m := range got {
		if m.Timestamp < 102 {
			t.Errorf("expected newest rows under limit, got ts=%d", m.Timestamp)
		}
	}
}

func TestMessagesEmptyChannelList(t *testing.T) {
	s := openTestStore(t)
	got, err := s.MessagesFromChannels(context.Background(), nil, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result for empty channel list, got %v", got)
	}
}

func TestRecordAndFetchActions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := Action{
		InteractionID: "i1",
		ChannelID:     "c1",
		Type:          "perform_web_search",
		Timestamp:     500,
		Reason:        "tool call",
		ResultSummary: "found things",
		ToolCallID:    "call_1",
	}
	if err := s.RecordAction(ctx, a); err != nil {
		t.Fatalf("record action: %v", err)
	}

	got, err := s.Actions(ctx, 0)
	if err != nil {
		t.Fatalf("fetch actions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Error("expected generated action ID")
	}
	if got[0].Type != "perform_web_search" {
		t.Errorf("unexpected type %q", got[0].Type)
	}

	got, err = s.Actions(ctx, 600)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no actions past cutoff, got %d", len(got))
	}
}

func TestCreateInteractionIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.CreateInteraction(ctx, "i1", "u1", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateInteraction(ctx, "i1", "u1", 100); err != nil {
		t.Fatalf("expected duplicate create to be ignored: %v", err)
	}
}
