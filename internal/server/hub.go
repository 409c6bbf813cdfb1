package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

const (
	sendBufferSize = 64
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxReadSize    = 512
)

// StageConnected は接続直後に送るイベントの段階です。
const StageConnected workflow.Stage = "connected"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient はセッション1つ分の WebSocket 接続なのだ。
type wsClient struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once
}

// Hub は進捗イベントを同じセッションの WebSocket 接続へ配信します。
// workflow.Reporter を実装しているので、オーケストレーターに直接渡せるのだ。
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewHub は空の Hub を生成します。
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Report はイベントを該当セッションの接続へ送ります。
// 送信バッファが詰まっている接続には送らずに捨てるのだ。
func (h *Hub) Report(ctx context.Context, ev workflow.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.WarnContext(ctx, "進捗イベントのエンコードに失敗しました", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.sessionID != ev.SessionID {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.WarnContext(ctx, "送信バッファが一杯なのでイベントを破棄します", "session", c.sessionID, "stage", ev.Stage)
		}
	}
}

// ClientCount は接続中のクライアント数を返します。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run は ctx が終わるまで待ち、終了時に全ての接続を閉じます。
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.Close()
	return nil
}

// Close は全ての接続を閉じ、以後の接続を拒否するのだ。
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeWS は接続をアップグレードしてセッションに登録します。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "WebSocket のアップグレードに失敗しました", "error", err)
		return
	}

	c := &wsClient{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		hub:       h,
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	slog.Debug("WebSocket クライアントが接続しました", "session", sessionID, "total", h.ClientCount())

	go c.writePump()
	go c.readPump()

	// 登録が済んだことをクライアントに知らせます
	h.Report(r.Context(), workflow.Event{SessionID: sessionID, Stage: StageConnected})
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
		slog.Debug("WebSocket クライアントが切断しました", "session", c.sessionID)
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// writePump は送信キューを接続へ書き出し、定期的に ping を送るのだ。
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}

// readPump は切断の検知だけを行います。クライアントからのメッセージは読み捨てます。
func (c *wsClient) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("WebSocket が予期せず切断されました", "session", c.sessionID, "error", err)
			}
			return
		}
	}
}
