package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// VerificationEvent уходит подписчикам пользователя.
type VerificationEvent struct {
	Type     string    `json:"type"`
	UserID   int       `json:"user_id"`
	Verified bool      `json:"verified"`
	At       time.Time `json:"at"`
}

const (
	EventStatus        = "status"
	EventEmailVerified = "email_verified"
)

// VerificationHub держит открытые соединения, сгруппированные по user_id.
type VerificationHub struct {
	mu      sync.RWMutex
	clients map[int]map[*Client]struct{}
	log     *zap.Logger
}

func NewVerificationHub(log *zap.Logger) *VerificationHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationHub{
		clients: make(map[int]map[*Client]struct{}),
		log:     log,
	}
}

// Attach регистрирует соединение подписчиком userID, ставит initial первым
// в очередь и обслуживает соединение до его закрытия.
func (h *VerificationHub) Attach(conn *websocket.Conn, userID int, initial any) {
	c := newClient(h, conn, userID, h.log)
	// регистрируемся до отправки статуса, чтобы не потерять событие между ними
	h.Register(c)
	if initial != nil {
		c.Send(initial)
	}
	go c.writePump()
	c.readPump()
}

func (h *VerificationHub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

func (h *VerificationHub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Subscribers: число открытых соединений пользователя.
func (h *VerificationHub) Subscribers(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// NotifyVerified рассылает событие всем подписчикам пользователя.
// Медленные клиенты с переполненной очередью отключаются.
func (h *VerificationHub) NotifyVerified(userID int) {
	ev := VerificationEvent{Type: EventEmailVerified, UserID: userID, Verified: true, At: time.Now().UTC()}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.Send(ev) {
			h.log.Warn("[realtime] subscriber too slow, dropping", zap.Int("user_id", userID))
			h.Unregister(c)
		}
	}
}
