package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"genfity-floor-services/internal/auth"
	"genfity-floor-services/internal/config"
	"genfity-floor-services/internal/floor"
	"genfity-floor-services/internal/middleware"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	TopicTables  = "tables"
	TopicKitchen = "kitchen"

	writeWait       = 5 * time.Second
	clientQueueSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type TableLister interface {
	List(ctx context.Context) ([]floor.TableView, error)
}

type GroupLister interface {
	List(ctx context.Context) ([]floor.MergedGroup, error)
}

type KitchenLister interface {
	KitchenQueue(ctx context.Context) ([]floor.OrderLine, error)
}

// Server pushes floor events to connected staff screens. It is a
// floor.Publisher: every published event is queued to the subscribers of
// its topic and Publish returns without waiting on any socket.
type Server struct {
	Logger *zap.Logger
	Config config.Config

	tables  TableLister
	groups  GroupLister
	kitchen KitchenLister

	realtime *floorRealtime
}

func New(logger *zap.Logger, cfg config.Config, tables TableLister, groups GroupLister, kitchen KitchenLister) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Logger:   logger,
		Config:   cfg,
		tables:   tables,
		groups:   groups,
		kitchen:  kitchen,
		realtime: newFloorRealtime(logger),
	}
}

// wsRealtimeClient owns a bounded outbox drained by its own writer, so a
// publish never waits on a slow screen.
type wsRealtimeClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	send      chan any
	done      chan struct{}
	closeOnce sync.Once
}

func newRealtimeClient(conn *websocket.Conn) *wsRealtimeClient {
	return &wsRealtimeClient{
		conn: conn,
		send: make(chan any, clientQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue reports false when the client is gone or its outbox is full.
func (c *wsRealtimeClient) enqueue(message any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *wsRealtimeClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *wsRealtimeClient) writePump() {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			if err := c.writeJSON(message); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsRealtimeClient) writeJSON(value any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(value)
}

func (c *wsRealtimeClient) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

type floorRealtime struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*wsRealtimeClient]struct{}
}

func newFloorRealtime(logger *zap.Logger) *floorRealtime {
	return &floorRealtime{
		logger: logger,
		subs:   make(map[string]map[*wsRealtimeClient]struct{}),
	}
}

func (fr *floorRealtime) subscribe(topic string, client *wsRealtimeClient) (unsubscribe func()) {
	key := strings.TrimSpace(topic)
	if key == "" {
		return func() {}
	}

	fr.mu.Lock()
	if fr.subs[key] == nil {
		fr.subs[key] = make(map[*wsRealtimeClient]struct{})
	}
	fr.subs[key][client] = struct{}{}
	fr.mu.Unlock()

	return func() {
		fr.mu.Lock()
		clients := fr.subs[key]
		delete(clients, client)
		if len(clients) == 0 {
			delete(fr.subs, key)
		}
		fr.mu.Unlock()
	}
}

func (fr *floorRealtime) broadcast(topic string, message any) {
	fr.mu.RLock()
	clientsMap := fr.subs[topic]
	clients := make([]*wsRealtimeClient, 0, len(clientsMap))
	for c := range clientsMap {
		clients = append(clients, c)
	}
	fr.mu.RUnlock()

	for _, c := range clients {
		if c.enqueue(message) {
			continue
		}
		fr.logger.Debug("ws client dropped", zap.String("topic", topic))
		c.close()
		fr.mu.Lock()
		if current := fr.subs[topic]; current != nil {
			delete(current, c)
			if len(current) == 0 {
				delete(fr.subs, topic)
			}
		}
		fr.mu.Unlock()
	}
}

func (fr *floorRealtime) subscribers(topic string) int {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	return len(fr.subs[topic])
}

func (s *Server) Publish(_ context.Context, event floor.Event) error {
	s.realtime.broadcast(event.Topic(), map[string]any{"type": event.Type, "data": event})
	return nil
}

// requestedTopics reads ?topics=tables,kitchen; both by default.
func requestedTopics(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("topics"))
	if raw == "" {
		return []string{TopicTables, TopicKitchen}
	}
	out := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		topic := strings.ToLower(strings.TrimSpace(part))
		if (topic == TopicTables || topic == TopicKitchen) && !seen[topic] {
			seen[topic] = true
			out = append(out, topic)
		}
	}
	return out
}

func queryToken(r *http.Request) string {
	raw := strings.TrimSpace(r.URL.Query().Get("token"))
	if bearer := auth.ParseBearerToken(raw); bearer != "" {
		return bearer
	}
	return raw
}

func (s *Server) FloorWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	authCtx, err := middleware.Authenticate(queryToken(r), s.Config.JWTSecret)
	if err != nil || !auth.Allowed(authCtx.Role, r.URL.Path, http.MethodGet) {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "unauthorized"})
		return
	}

	topics := requestedTopics(r)
	if len(topics) == 0 {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "unknown topics"})
		return
	}

	ctx := r.Context()
	client := newRealtimeClient(conn)
	defer client.close()
	for _, topic := range topics {
		unsubscribe := s.realtime.subscribe(topic, client)
		defer unsubscribe()
	}

	// Send initial snapshot immediately
	for _, topic := range topics {
		if err := s.sendSnapshot(ctx, client, topic); err != nil {
			s.Logger.Warn("ws snapshot failed", zap.String("topic", topic), zap.Int64("userId", authCtx.UserID), zap.Error(err))
		}
	}

	go client.writePump()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	interval := s.Config.WSHeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-clientClosed:
			return
		case <-client.done:
			return
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendSnapshot(ctx context.Context, client *wsRealtimeClient, topic string) error {
	switch topic {
	case TopicTables:
		tables, err := s.tables.List(ctx)
		if err != nil {
			return err
		}
		groups, err := s.groups.List(ctx)
		if err != nil {
			return err
		}
		return client.writeJSON(map[string]any{
			"type": "tables.state",
			"data": map[string]any{"tables": tables, "groups": groups},
		})
	case TopicKitchen:
		lines, err := s.kitchen.KitchenQueue(ctx)
		if err != nil {
			return err
		}
		return client.writeJSON(map[string]any{"type": "kitchen.state", "data": lines})
	}
	return nil
}

var _ floor.Publisher = (*Server)(nil)
