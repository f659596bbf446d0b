package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// время на запись одного сообщения клиенту
	writeWait = 10 * time.Second

	// клиент должен ответить pong за это время
	pongWait = 60 * time.Second

	// ping чаще, чем истекает pongWait
	pingPeriod = (pongWait * 9) / 10

	// клиенты присылают только служебные кадры
	maxMessageSize = 1024

	sendBuffer = 16
)

// Client: одно WebSocket-соединение подписчика.
// Писать в conn может только writePump.
type Client struct {
	hub    *VerificationHub
	conn   *websocket.Conn
	userID int
	log    *zap.Logger

	mu     sync.Mutex
	send   chan any
	closed bool
}

func newClient(hub *VerificationHub, conn *websocket.Conn, userID int, log *zap.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan any, sendBuffer),
		log:    log,
	}
}

// Send ставит событие в очередь. false, если очередь переполнена
// или клиент уже закрыт.
func (c *Client) Send(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

// close закрывает очередь; writePump отправит close-кадр и завершится.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("[realtime] write failed", zap.Int("user_id", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump читает до закрытия соединения; содержимое сообщений не нужно,
// чтение держит pong-дедлайн и замечает закрытие клиентом.
func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("[realtime] unexpected close", zap.Int("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

// NewUpgrader: allowedOrigins пуст или содержит "*", значит любой Origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}
