package websocket

import (
	"context"
	"sync"

	"fuelpoints-service/internal/domain/raffle"
	wstypes "fuelpoints-service/internal/domain/websocket"
	"fuelpoints-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// Hub fans out server-side announcements to connected clients. Its main job
// is pushing raffle winner notifications the moment a draw settles.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *directMessage

	verifier *jwt.Verifier
	logger   *zap.Logger
}

type directMessage struct {
	// UserIDs nil means broadcast to everyone.
	UserIDs []string
	Message *wstypes.WSMessage
}

func NewHub(verifier *jwt.Verifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *directMessage, 256),
		verifier:   verifier,
		logger:     logger,
	}
}

// Authenticate verifies the bearer token handed over during the upgrade.
func (h *Hub) Authenticate(token string) (string, error) {
	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Register hands a new connection to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// NotifyWinner pushes a prize announcement to the winning user's live
// connections. Offline winners find out from the winners endpoint.
func (h *Hub) NotifyWinner(w raffle.Winner) {
	msg := wstypes.NewMessage(wstypes.EventTypeWinner, wstypes.WinnerData{
		RaffleID:     w.RaffleID,
		WinnerID:     w.ID,
		TicketNumber: w.TicketNumber,
		PrizeTier:    w.PrizeTier,
		PrizeAmount:  w.PrizeAmount.String(),
	})
	h.broadcast <- &directMessage{UserIDs: []string{w.UserID}, Message: msg}
}

// NotifyTicketUpdate tells a user their ticket balance changed.
func (h *Hub) NotifyTicketUpdate(userID string, usableCount int) {
	msg := wstypes.NewMessage(wstypes.EventTypeTicketUpdate, map[string]interface{}{
		"usable_count": usableCount,
	})
	h.broadcast <- &directMessage{UserIDs: []string{userID}, Message: msg}
}

// ConnectedUsers reports how many distinct users hold live connections.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalClients reports the number of live connections.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	h.logger.Debug("websocket client connected",
		zap.String("user_id", client.userID),
		zap.Int("total", h.totalLocked()))

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"user_id": client.userID,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}

	h.logger.Debug("websocket client disconnected",
		zap.String("user_id", client.userID),
		zap.Int("total", h.totalLocked()))
}

func (h *Hub) deliver(msg *directMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.UserIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				client.SendMessage(msg.Message)
			}
		}
		return
	}
	for _, userID := range msg.UserIDs {
		for client := range h.clients[userID] {
			client.SendMessage(msg.Message)
		}
	}
}

func (h *Hub) totalLocked() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
}
