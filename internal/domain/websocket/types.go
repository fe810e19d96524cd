package websocket

import (
	"encoding/json"
	"time"
)

// EventType labels a websocket frame.
type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeError        EventType = "error"

	// EventTypeWinner announces a raffle prize to the winning user.
	EventTypeWinner EventType = "raffle.winner"
	// EventTypeTicketUpdate tells a user their ticket balance changed.
	EventTypeTicketUpdate EventType = "ticket.update"
)

// WSMessage is the frame envelope.
type WSMessage struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WinnerData is the payload behind EventTypeWinner.
type WinnerData struct {
	RaffleID     string `json:"raffle_id"`
	WinnerID     string `json:"winner_id"`
	TicketNumber int64  `json:"ticket_number"`
	PrizeTier    int    `json:"prize_tier"`
	PrizeAmount  string `json:"prize_amount"`
}

// ErrorData is the payload behind EventTypeError.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewMessage builds a timestamped frame.
func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ParseMessage decodes a client frame.
func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ToJSON encodes the frame for the wire.
func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
