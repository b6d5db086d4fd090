package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/e-RicardoGama/nutriscan/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MealEvent is pushed to the owner's sockets on every status change.
type MealEvent struct {
	Type      string            `json:"type"`
	MealID    uint              `json:"refeicao_id"`
	Status    models.MealStatus `json:"status"`
	Calories  *int              `json:"kcal_estimadas,omitempty"`
	Error     string            `json:"erro,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

const mealStatusEvent = "meal.status"

// StatusPublisher receives meal status transitions.
type StatusPublisher interface {
	PublishMealStatus(ownerID uint, ev MealEvent)
}

type WSClient struct {
	UserID uint
	Conn   *websocket.Conn

	writeMu sync.Mutex
}

// Write serialises writes; a websocket conn allows one writer at a time.
func (c *WSClient) Write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

type RealtimeHub struct {
	mu      sync.RWMutex
	clients map[uint]map[*WSClient]struct{}
	log     *zap.Logger
}

func NewRealtimeHub(log *zap.Logger) *RealtimeHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &RealtimeHub{clients: make(map[uint]map[*WSClient]struct{}), log: log}
}

func (h *RealtimeHub) Register(c *WSClient) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*WSClient]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("ws client registered", zap.Uint("user_id", c.UserID))
}

func (h *RealtimeHub) Unregister(c *WSClient) {
	h.mu.Lock()
	if set := h.clients[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()
	_ = c.Conn.Close()
}

// Connections reports how many sockets the user has open.
func (h *RealtimeHub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *RealtimeHub) PublishMealStatus(ownerID uint, ev MealEvent) {
	if ev.Type == "" {
		ev.Type = mealStatusEvent
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.Broadcast(ownerID, ev)
}

func (h *RealtimeHub) Broadcast(userID uint, payload any) {
	msg, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("ws payload marshal", zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Write(websocket.TextMessage, msg); err != nil {
			h.log.Debug("ws write failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
}
