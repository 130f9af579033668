package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/hashtagemy/guard/internal/metrics"
	"github.com/hashtagemy/guard/internal/store"
)

// snapshotInterval is how often a connected dashboard gets a fresh
// full snapshot even without an intervening broadcast (spec.md §4.5
// "push a full snapshot at least every 5 s").
const snapshotInterval = 5 * time.Second

const writeTimeout = 5 * time.Second

// Hub is C5's WebSocket fan-out: a single process-wide set of
// connections, each sent a full normalized snapshot on connect, on
// every broadcast, and on a periodic timer. Grounded on tarsy's
// pkg/events.ConnectionManager (connection registration, snapshot-
// under-lock-then-send-outside-lock broadcast pattern), stripped of
// its Postgres LISTEN/NOTIFY channel-subscription machinery — this
// system has one implicit channel (every session) pushed as a whole,
// matching original_source/norn/routers/websocket.py's periodic full
// refresh instead of per-channel catchup.
type Hub struct {
	store *store.Store

	mu    sync.RWMutex
	conns map[string]*wsConn
}

type wsConn struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub builds a Hub reading session snapshots from s.
func NewHub(s *store.Store) *Hub {
	return &Hub{store: s, conns: make(map[string]*wsConn)}
}

// HandleConnection owns one WebSocket client for its lifetime: sends
// the initial snapshot, then reads frames until the socket closes,
// replying "pong" to "ping" text frames and ignoring everything else
// (spec.md §4.5 "Replies to 'ping' text frames with 'pong'").
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &wsConn{id: uuid.NewString(), conn: conn, ctx: ctx, cancel: cancel}

	h.register(c)
	defer h.unregister(c)

	if snap, err := h.buildSnapshot(); err == nil {
		_ = h.sendRaw(c, snap)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if strings.TrimSpace(string(data)) == "ping" {
			if err := h.sendText(c, "pong"); err != nil {
				return
			}
		}
	}
}

// BroadcastSession triggers an immediate full-snapshot push to every
// connected client. It matches pipeline.Broadcaster's signature; the
// changed session_id itself is not singled out because spec.md's
// broadcast model is always a full snapshot, not a per-session delta.
func (h *Hub) BroadcastSession(_ string) {
	h.broadcastSnapshot()
}

// StartPeriodicSnapshot launches the background timer that pushes a
// full snapshot to every connection at least every snapshotInterval,
// stopping when ctx is cancelled.
func (h *Hub) StartPeriodicSnapshot(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.broadcastSnapshot()
			}
		}
	}()
}

// ActiveConnections reports the current connection count (exposed via
// /stats and internal/metrics).
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) broadcastSnapshot() {
	snap, err := h.buildSnapshot()
	if err != nil {
		slog.Error("ingest: failed to build snapshot", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := h.sendRaw(c, snap); err != nil {
			h.unregister(c)
		}
	}
}

func (h *Hub) buildSnapshot() ([]byte, error) {
	sessions, err := h.store.ListSessions(0)
	if err != nil {
		return nil, err
	}
	normalized := make([]map[string]any, len(sessions))
	for i, s := range sessions {
		normalized[i] = Normalize(s)
	}
	return json.Marshal(map[string]any{
		"type":     "snapshot",
		"sessions": normalized,
	})
}

func (h *Hub) register(c *wsConn) {
	h.mu.Lock()
	h.conns[c.id] = c
	n := len(h.conns)
	h.mu.Unlock()
	metrics.SetWSConnections(n)
}

func (h *Hub) unregister(c *wsConn) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	n := len(h.conns)
	h.mu.Unlock()
	metrics.SetWSConnections(n)
	if ok {
		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (h *Hub) sendRaw(c *wsConn, data []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) sendText(c *wsConn, text string) error {
	return h.sendRaw(c, []byte(text))
}
