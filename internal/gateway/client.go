// Package gateway is the chat transport shell: a websocket connection
// to the chat service, inbound event handling, and the single-consumer
// drain loop that feeds the reasoning agent.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gendev/gen-agent/internal/agent"
	"github.com/gendev/gen-agent/internal/events"
	"github.com/gendev/gen-agent/internal/httpkit"
	"github.com/gendev/gen-agent/internal/mentions"
	"github.com/gendev/gen-agent/internal/profiles"
	"github.com/gendev/gen-agent/internal/queue"
	"github.com/gendev/gen-agent/internal/store"
)

// DefaultMessageLimit is the transport's maximum outbound message
// length in characters when the config does not say otherwise.
const DefaultMessageLimit = 2000

const (
	pingInterval   = 30 * time.Second
	readWait       = 70 * time.Second
	writeWait      = 10 * time.Second
	reconnectDelay = 5 * time.Second
)

// frame is the gateway wire envelope.
type frame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

// readyData is the payload of the ready frame sent after identify.
type readyData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Attachment is a file reference on an inbound message.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// MessageEvent is one inbound chat message.
type MessageEvent struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	IsDM        bool         `json:"is_dm"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// outboundFile rides along with an outbound message. Data is
// base64-encoded on the wire by encoding/json.
type outboundFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type outboundMessage struct {
	ChannelID string         `json:"channel_id"`
	Content   string         `json:"content"`
	Files     []outboundFile `json:"files,omitempty"`
}

// Responder drives one interaction to a reply. The agent satisfies it.
type Responder interface {
	Respond(ctx context.Context, item queue.Item) agent.Reply
}

// Recorder is the persistence surface for inbound traffic.
type Recorder interface {
	SaveMessage(ctx context.Context, m store.Message) error
	CreateInteraction(ctx context.Context, id, userID string, ts int64) error
}

// Roster is the profile surface the gateway updates as traffic arrives
// and reads when rendering outbound mentions.
type Roster interface {
	Ensure(ctx context.Context, userID, username string) error
	SetDMChannel(ctx context.Context, userID, channelID string) error
	SetLastActive(ctx context.Context, userID, channelID string) error
	KnownNames(ctx context.Context) ([]profiles.NameRef, error)
}

// Describer captions inbound images so the agent sees text instead of
// bytes. The media client satisfies it.
type Describer interface {
	Analyze(ctx context.Context, imageData []byte, mimeType string) string
}

// Activity is notified as the agent goes busy and idle. The knowledge
// idle manager satisfies it.
type Activity interface {
	Touch()
	SetBusy(busy bool)
}

// Options configures a Client beyond its collaborators.
type Options struct {
	URL          string
	Token        string
	BotUserID    string
	BotName      string
	MessageLimit int
	PlainText    bool
	Bus          *events.Bus
	Logger       *slog.Logger
	HTTPClient   *http.Client
}

// Client is the websocket gateway client.
type Client struct {
	url          string
	token        string
	botName      string
	messageLimit int
	plainText    bool

	conn   *websocket.Conn
	connMu sync.Mutex

	botUserID string
	botMu     sync.RWMutex

	responder Responder
	recorder  Recorder
	roster    Roster
	queue     *queue.Queue
	describer Describer
	activity  Activity
	bus       *events.Bus
	http      *http.Client
	logger    *slog.Logger
}

func New(opts Options, responder Responder, recorder Recorder, roster Roster, q *queue.Queue, describer Describer, activity Activity) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = DefaultMessageLimit
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))
	}
	return &Client{
		url:          opts.URL,
		token:        opts.Token,
		botUserID:    opts.BotUserID,
		botName:      opts.BotName,
		messageLimit: opts.MessageLimit,
		plainText:    opts.PlainText,
		responder:    responder,
		recorder:     recorder,
		roster:       roster,
		queue:        q,
		describer:    describer,
		activity:     activity,
		bus:          opts.Bus,
		http:         opts.HTTPClient,
		logger:       opts.Logger,
	}
}

// SetResponder wires the reasoning agent in after construction. The
// agent needs the bot user id, which may only be known once the
// gateway's ready frame arrives, so main connects first and attaches
// the responder before starting the drain loop.
func (c *Client) SetResponder(r Responder) {
	c.responder = r
}

// BotUserID returns the agent's own user id, either configured or
// learned from the ready frame.
func (c *Client) BotUserID() string {
	c.botMu.RLock()
	defer c.botMu.RUnlock()
	return c.botUserID
}

// Connect dials the gateway, identifies, and waits for the ready frame.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("parse gateway URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	c.logger.Info("connecting to gateway", "url", u.String())

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	identify, _ := json.Marshal(map[string]string{"token": c.token})
	if err := conn.WriteJSON(frame{Op: "identify", Data: identify}); err != nil {
		conn.Close()
		return fmt.Errorf("send identify: %w", err)
	}

	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		conn.Close()
		return fmt.Errorf("read ready: %w", err)
	}
	if f.Op != "ready" {
		conn.Close()
		return fmt.Errorf("expected ready, got %s", f.Op)
	}
	var ready readyData
	if err := json.Unmarshal(f.Data, &ready); err != nil {
		conn.Close()
		return fmt.Errorf("unmarshal ready: %w", err)
	}

	c.botMu.Lock()
	if c.botUserID == "" {
		c.botUserID = ready.UserID
	}
	c.botMu.Unlock()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("gateway ready", "bot_user_id", c.BotUserID())
	return nil
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Listen reads gateway frames until ctx is cancelled, reconnecting on
// connection loss.
func (c *Client) Listen(ctx context.Context) error {
	for {
		if err := c.readFrames(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("gateway connection lost, reconnecting", "error", err, "delay", reconnectDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Error("gateway reconnect failed", "error", err)
		}
	}
}

func (c *Client) readFrames(ctx context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.connMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				c.connMu.Unlock()
				if err != nil {
					return
				}
			case <-stopPing:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		switch f.Op {
		case "message":
			var ev MessageEvent
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				c.logger.Warn("malformed message frame", "error", err)
				continue
			}
			c.handleMessage(ctx, ev)
		case "ping":
			// Some gateways ping at the application level too.
			c.write(frame{Op: "pong"})
		default:
			c.logger.Debug("ignoring gateway frame", "op", f.Op)
		}
	}
}

// handleMessage persists one inbound message and, for user traffic,
// enqueues it for the agent. The bot's own echoed messages are stored
// as assistant turns and never enqueued.
func (c *Client) handleMessage(ctx context.Context, ev MessageEvent) {
	if ev.ID == "" || ev.ChannelID == "" {
		return
	}

	role := "user"
	if ev.AuthorID == c.BotUserID() {
		role = "assistant"
	}

	if role == "user" && c.roster != nil {
		if err := c.roster.Ensure(ctx, ev.AuthorID, ev.AuthorName); err != nil {
			c.logger.Warn("profile ensure failed", "user_id", ev.AuthorID, "error", err)
		}
		if ev.IsDM {
			c.roster.SetDMChannel(ctx, ev.AuthorID, ev.ChannelID)
		} else {
			c.roster.SetLastActive(ctx, ev.AuthorID, ev.ChannelID)
		}
	}

	content := ev.Content
	var attachmentURL string
	if len(ev.Attachments) > 0 {
		attachmentURL = ev.Attachments[0].URL
		if caption := c.describeAttachment(ctx, ev.Attachments[0]); caption != "" {
			content = content + "\n[Attached image: " + caption + "]"
		}
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if role == "user" {
		if err := c.recorder.CreateInteraction(ctx, ev.ID, ev.AuthorID, ts.Unix()); err != nil {
			c.logger.Warn("create interaction failed", "id", ev.ID, "error", err)
		}
	}
	if err := c.recorder.SaveMessage(ctx, store.Message{
		ID:            ev.ID,
		InteractionID: ev.ID,
		ChannelID:     ev.ChannelID,
		AuthorID:      ev.AuthorID,
		Role:          role,
		Content:       content,
		Timestamp:     ts.Unix(),
		IsDM:          ev.IsDM,
		HasAttachment: len(ev.Attachments) > 0,
	}); err != nil {
		c.logger.Error("save message failed", "id", ev.ID, "error", err)
	}

	if role != "user" {
		return
	}

	if c.activity != nil {
		c.activity.Touch()
	}
	c.queue.Put(queue.Item{
		ID:            ev.ID,
		ChannelID:     ev.ChannelID,
		AuthorID:      ev.AuthorID,
		AuthorName:    ev.AuthorName,
		Content:       content,
		Timestamp:     ts,
		IsDM:          ev.IsDM,
		HasAttachment: len(ev.Attachments) > 0,
		AttachmentURL: attachmentURL,
	})
	c.bus.Emit(events.SourceGateway, events.KindMessageReceived, map[string]any{
		"channel_id": ev.ChannelID,
		"author_id":  ev.AuthorID,
	})
}

// describeAttachment downloads an image attachment and captions it.
// Non-image attachments and caption failures yield "".
func (c *Client) describeAttachment(ctx context.Context, att Attachment) string {
	if c.describer == nil || !isImage(att.ContentType) {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("attachment download failed", "url", att.URL, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return ""
	}

	return c.describer.Analyze(ctx, data, att.ContentType)
}

func isImage(contentType string) bool {
	switch contentType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	}
	return false
}

// Run is the single-consumer drain loop: it blocks on the queue and
// drives each item through the agent, sending the reply back out. It
// returns when ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		item, err := c.queue.Next(ctx)
		if err != nil {
			return err
		}

		if c.activity != nil {
			c.activity.SetBusy(true)
		}
		reply := c.responder.Respond(ctx, item)
		if c.activity != nil {
			c.activity.SetBusy(false)
		}

		if err := c.Send(ctx, item.ChannelID, reply); err != nil {
			c.logger.Error("sending reply failed", "channel_id", item.ChannelID, "error", err)
		}
	}
}

// Send delivers one reply, splitting text that exceeds the transport
// limit. Artifacts ride on the first chunk.
func (c *Client) Send(ctx context.Context, channelID string, reply agent.Reply) error {
	text := c.renderOutbound(ctx, reply.Text)

	chunks := SplitMessage(text, c.messageLimit)
	if len(chunks) == 0 && len(reply.Artifacts) > 0 {
		chunks = []string{""}
	}

	for i, chunk := range chunks {
		out := outboundMessage{ChannelID: channelID, Content: chunk}
		if i == 0 {
			for _, a := range reply.Artifacts {
				out.Files = append(out.Files, outboundFile{Name: a.Name, Data: a.Data})
			}
		}
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal outbound message: %w", err)
		}
		if err := c.write(frame{Op: "send", Data: data}); err != nil {
			return err
		}
	}

	c.bus.Emit(events.SourceGateway, events.KindMessageSent, map[string]any{
		"channel_id": channelID,
		"chunks":     len(chunks),
	})
	return nil
}

// renderOutbound prepares reply text for the wire. On styled
// transports known display names become mention markup so the people
// Gen talks about actually get pinged; plain-text transports get
// markdown stripped instead.
func (c *Client) renderOutbound(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}
	if c.plainText {
		return RenderPlain(text)
	}
	if c.roster != nil {
		if names, err := c.roster.KnownNames(ctx); err == nil {
			text = mentions.AliasesToMentions(text, names)
		}
	}
	return text
}

func (c *Client) write(f frame) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}
