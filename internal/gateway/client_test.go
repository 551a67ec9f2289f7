package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/gendev/gen-agent/internal/profiles"
	"github.com/gendev/gen-agent/internal/queue"
	"github.com/gendev/gen-agent/internal/store"
)

type recordedInteraction struct {
	id     string
	userID string
}

type fakeRecorder struct {
	messages     []store.Message
	interactions []recordedInteraction
}

func (f *fakeRecorder) SaveMessage(ctx context.Context, m store.Message) error {
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeRecorder) CreateInteraction(ctx context.Context, id, userID string, ts int64) error {
	f.interactions = append(f.interactions, recordedInteraction{id: id, userID: userID})
	return nil
}

type fakeRoster struct {
	ensured    []string
	dmChannels map[string]string
	lastActive map[string]string
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{dmChannels: map[string]string{}, lastActive: map[string]string{}}
}

func (f *fakeRoster) Ensure(ctx context.Context, userID, username string) error {
	f.ensured = append(f.ensured, userID)
	return nil
}

func (f *fakeRoster) SetDMChannel(ctx context.Context, userID, channelID string) error {
	f.dmChannels[userID] = channelID
	return nil
}

func (f *fakeRoster) SetLastActive(ctx context.Context, userID, channelID string) error {
	f.lastActive[userID] = channelID
	return nil
}

func (f *fakeRoster) KnownNames(ctx context.Context) ([]profiles.NameRef, error) {
	return []profiles.NameRef{{Name: "Maya", UserID: "111"}}, nil
}

func newTestClient(rec *fakeRecorder, roster *fakeRoster, q *queue.Queue) *Client {
	return New(Options{
		URL:       "ws://gateway.local",
		BotUserID: "999",
		BotName:   "Gen",
	}, nil, rec, roster, q, nil, nil)
}

func TestHandleMessageUser(t *testing.T) {
	rec := &fakeRecorder{}
	roster := newFakeRoster()
	q := queue.New()
	c := newTestClient(rec, roster, q)

	c.handleMessage(context.Background(), MessageEvent{
		ID:         "m1",
		ChannelID:  "chan1",
		AuthorID:   "111",
		AuthorName: "maya_01",
		Content:    "hello!",
		Timestamp:  time.Unix(1700000000, 0),
	})

	if len(rec.messages) != 1 {
		t.Fatalf("saved %d messages", len(rec.messages))
	}
	m := rec.messages[0]
	if m.Role != "user" || m.Content != "hello!" || m.ChannelID != "chan1" {
		t.Errorf("message = %+v", m)
	}
	if len(rec.interactions) != 1 || rec.interactions[0].id != "m1" {
		t.Errorf("interactions = %+v", rec.interactions)
	}
	if len(roster.ensured) != 1 || roster.ensured[0] != "111" {
		t.Errorf("ensured = %v", roster.ensured)
	}
	if roster.lastActive["111"] != "chan1" {
		t.Errorf("lastActive = %v", roster.lastActive)
	}
	if q.Len() != 1 {
		t.Errorf("queue length = %d", q.Len())
	}
}

func TestHandleMessageBotEcho(t *testing.T) {
	rec := &fakeRecorder{}
	roster := newFakeRoster()
	q := queue.New()
	c := newTestClient(rec, roster, q)

	c.handleMessage(context.Background(), MessageEvent{
		ID:        "m2",
		ChannelID: "chan1",
		AuthorID:  "999",
		Content:   "My own reply, neko!",
		Timestamp: time.Unix(1700000000, 0),
	})

	if len(rec.messages) != 1 || rec.messages[0].Role != "assistant" {
		t.Fatalf("messages = %+v", rec.messages)
	}
	// Echoes are stored but never enqueued or counted as interactions.
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
	if len(rec.interactions) != 0 {
		t.Errorf("interactions = %+v", rec.interactions)
	}
	if len(roster.ensured) != 0 {
		t.Errorf("roster touched for bot echo: %v", roster.ensured)
	}
}

func TestHandleMessageDM(t *testing.T) {
	rec := &fakeRecorder{}
	roster := newFakeRoster()
	c := newTestClient(rec, roster, queue.New())

	c.handleMessage(context.Background(), MessageEvent{
		ID:        "m3",
		ChannelID: "dm42",
		AuthorID:  "111",
		Content:   "psst",
		IsDM:      true,
		Timestamp: time.Unix(1700000000, 0),
	})

	if roster.dmChannels["111"] != "dm42" {
		t.Errorf("dmChannels = %v", roster.dmChannels)
	}
	if !rec.messages[0].IsDM {
		t.Error("stored message not marked as DM")
	}
}

func TestHandleMessageIgnoresIncomplete(t *testing.T) {
	rec := &fakeRecorder{}
	c := newTestClient(rec, newFakeRoster(), queue.New())

	c.handleMessage(context.Background(), MessageEvent{ID: "", ChannelID: "chan1"})
	c.handleMessage(context.Background(), MessageEvent{ID: "m4", ChannelID: ""})

	if len(rec.messages) != 0 {
		t.Fatalf("saved %d messages, want 0", len(rec.messages))
	}
}

func TestRenderOutboundMentions(t *testing.T) {
	c := newTestClient(&fakeRecorder{}, newFakeRoster(), queue.New())

	got := c.renderOutbound(context.Background(), "Hey Maya, long time!")
	if got != "Hey <@111>, long time!" {
		t.Errorf("renderOutbound() = %q", got)
	}
}

func TestRenderOutboundPlainText(t *testing.T) {
	c := newTestClient(&fakeRecorder{}, newFakeRoster(), queue.New())
	c.plainText = true

	got := c.renderOutbound(context.Background(), "Hello **Maya**")
	if got != "Hello Maya" {
		t.Errorf("renderOutbound() = %q", got)
	}
}

func TestHandleMessageAttachmentMarksItem(t *testing.T) {
	rec := &fakeRecorder{}
	q := queue.New()
	c := newTestClient(rec, newFakeRoster(), q)

	c.handleMessage(context.Background(), MessageEvent{
		ID:          "m5",
		ChannelID:   "chan1",
		AuthorID:    "111",
		AuthorName:  "maya_01",
		Content:     "look at this",
		Timestamp:   time.Unix(1700000000, 0),
		Attachments: []Attachment{{URL: "https://cdn.example/img.png", ContentType: "image/png"}},
	})

	if !rec.messages[0].HasAttachment {
		t.Error("stored message not marked as having attachment")
	}
	items := q.PeekChannel("chan1")
	if len(items) != 1 || !items[0].HasAttachment || items[0].AttachmentURL == "" {
		t.Errorf("queued item = %+v", items)
	}
}
