// Package hub fans ticket events out to connected display boards. Boards
// subscribe per department; an empty subscription receives everything.
package hub

import (
	"encoding/json"
	"log"
	"sync"
)

type Client struct {
	ID           string
	Send         chan []byte
	DepartmentID string
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action       string `json:"action"`
	DepartmentID string `json:"department_id"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, departmentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.DepartmentID = departmentID
}

// Broadcast delivers payload to every client subscribed to departmentID. Slow
// clients are skipped rather than blocking the poller.
func (h *Hub) Broadcast(payload []byte, departmentID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.DepartmentID != "" && client.DepartmentID != departmentID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
