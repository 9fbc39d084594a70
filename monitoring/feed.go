package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"diapredict/logging"
)

// MessageType identifies the kind of event carried by a feed message.
type MessageType string

const (
	MessageTypeReport      MessageType = "prediction_report"
	MessageTypeTrainingRun MessageType = "training_run"
	MessageTypeHeartbeat   MessageType = "heartbeat"
)

// Message is the envelope every feed event is wrapped in before broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// ReportEvent is pushed to the feed whenever a prediction report is stored.
type ReportEvent struct {
	ReportID    string    `json:"report_id"`
	OwnerID     string    `json:"owner_id"`
	Outcome     int       `json:"outcome"`
	Probability float64   `json:"probability"`
	Confidence  int       `json:"confidence_percentage"`
	Variant     string    `json:"model_variant"`
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TrainingRunEvent is pushed to the feed when a training run publishes a model.
type TrainingRunEvent struct {
	RunID      string    `json:"run_id"`
	Selected   string    `json:"selected_variant"`
	Accuracy   float64   `json:"accuracy"`
	ROCAUC     float64   `json:"roc_auc"`
	TotalRows  int       `json:"total_rows"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// HeartbeatEvent keeps idle connections visibly alive.
type HeartbeatEvent struct {
	Status      string `json:"status"`
	ClientCount int    `json:"client_count"`
}

// Client is a single websocket subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
}

// Feed broadcasts prediction and training events to connected observers.
type Feed struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	log        *zap.SugaredLogger

	statsMu   sync.Mutex
	sent      int64
	startedAt time.Time
}

// FeedStats is a point-in-time snapshot of feed activity.
type FeedStats struct {
	Clients      int       `json:"clients"`
	MessagesSent int64     `json:"messages_sent"`
	StartedAt    time.Time `json:"started_at"`
	Uptime       string    `json:"uptime"`
}

// NewFeed builds a feed. A nil logger falls back to the process default.
func NewFeed(log *zap.SugaredLogger) *Feed {
	if log == nil {
		log = logging.DefaultLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Start runs the hub loop and the heartbeat ticker until Stop is called.
func (f *Feed) Start() {
	f.statsMu.Lock()
	f.startedAt = time.Now()
	f.statsMu.Unlock()

	go f.heartbeatLoop()

	for {
		select {
		case client := <-f.register:
			f.mu.Lock()
			f.clients[client.ID] = client
			f.mu.Unlock()
			f.log.Infow("feed client connected", "client_id", client.ID, "clients", f.ClientCount())

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client.ID]; ok {
				delete(f.clients, client.ID)
				close(client.send)
			}
			f.mu.Unlock()
			f.log.Infow("feed client disconnected", "client_id", client.ID, "clients", f.ClientCount())

		case message := <-f.broadcast:
			f.mu.Lock()
			for id, client := range f.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it rather than stall the feed.
					close(client.send)
					delete(f.clients, id)
				}
			}
			f.mu.Unlock()

		case <-f.ctx.Done():
			f.mu.Lock()
			for id, client := range f.clients {
				close(client.send)
				delete(f.clients, id)
			}
			f.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub loop down and disconnects all clients.
func (f *Feed) Stop() {
	f.cancel()
}

// HandleWebSocket upgrades the request and attaches the connection to the feed.
// Authorization happens upstream; by the time a request lands here the caller
// has already been checked.
func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Errorw("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	f.register <- client

	go client.writePump()
	go client.readPump(f)
}

// Broadcast queues a raw message for every connected client.
func (f *Feed) Broadcast(message []byte) {
	select {
	case f.broadcast <- message:
		f.statsMu.Lock()
		f.sent++
		f.statsMu.Unlock()
	default:
		f.log.Warn("feed broadcast queue full, dropping message")
	}
}

// PublishReport wraps a report event in an envelope and broadcasts it.
func (f *Feed) PublishReport(event ReportEvent) error {
	return f.publish(MessageTypeReport, event)
}

// PublishTrainingRun wraps a training event in an envelope and broadcasts it.
func (f *Feed) PublishTrainingRun(event TrainingRunEvent) error {
	return f.publish(MessageTypeTrainingRun, event)
}

func (f *Feed) publish(kind MessageType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	msg := Message{
		Type:      kind,
		Timestamp: time.Now(),
		Data:      data,
		ID:        uuid.NewString(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	f.Broadcast(raw)
	return nil
}

// ClientCount reports the number of attached clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Stats returns feed counters for the stats endpoint.
func (f *Feed) Stats() FeedStats {
	f.statsMu.Lock()
	sent := f.sent
	started := f.startedAt
	f.statsMu.Unlock()
	return FeedStats{
		Clients:      f.ClientCount(),
		MessagesSent: sent,
		StartedAt:    started,
		Uptime:       time.Since(started).Truncate(time.Second).String(),
	}
}

func (f *Feed) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if f.ClientCount() == 0 {
				continue
			}
			_ = f.publish(MessageTypeHeartbeat, HeartbeatEvent{
				Status:      "healthy",
				ClientCount: f.ClientCount(),
			})
		case <-f.ctx.Done():
			return
		}
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(f *Feed) {
	defer func() {
		f.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// The feed is one-way; inbound frames are drained only to
		// service pings and detect closes.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.log.Debugw("feed client read error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}
