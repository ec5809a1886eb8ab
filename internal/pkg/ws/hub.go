// Package ws 通过 WebSocket 向团队推送任务事件
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/pkg/pubsub"
)

type Hub struct {
	// 每个团队可以有多个连接（多个控制台页面、重连等场景）
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	log     *zap.SugaredLogger
}

type Client struct {
	TeamID string
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EventSource 任务事件来源
type EventSource interface {
	Subscribe(ctx context.Context, handler func(*pubsub.JobEvent)) error
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     zap.S().Named("ws"),
	}
}

// Run 把任务事件转发给所属团队的连接，阻塞直到 ctx 结束
func (h *Hub) Run(ctx context.Context, events EventSource) error {
	return events.Subscribe(ctx, func(event *pubsub.JobEvent) {
		if err := h.SendToTeam(event.TeamID, &Message{Type: event.Type, Data: event}); err != nil {
			h.log.Warnw("failed to forward job event", "job_id", event.JobID, "error", err)
		}
	})
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.TeamID] == nil {
		h.clients[client.TeamID] = make(map[*Client]struct{})
	}
	h.clients[client.TeamID][client] = struct{}{}

	h.log.Infow("team connected", "team_id", client.TeamID, "team_conns", len(h.clients[client.TeamID]), "total", h.countLocked())
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.TeamID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.TeamID)
		}
	}
	h.log.Infow("team disconnected", "team_id", client.TeamID)
}

// SendToTeam 向团队的所有连接发送消息，单个连接写失败不影响其他连接
func (h *Hub) SendToTeam(teamID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[teamID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Warnw("write to team connection failed", "team_id", teamID, "error", err)
		}
	}
	return nil
}

// IsOnline 团队是否有活跃连接
func (h *Hub) IsOnline(teamID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[teamID]
	return ok && len(conns) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
