package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/page-hub/page-hub/internal/lifecycle"
)

// commandBuffer 限制单个客户端未取走的指令数，队列满时 Navigate 失败，
// 由调用方决定如何处理。
const commandBuffer = 16

// Command 是下发给窗口客户端的指令，客户端轮询取走后自行执行。
type Command struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

type hubClient struct {
	id       string
	url      string
	commands chan Command
}

// ClientHub 维护当前打开的窗口客户端，并把激活阶段的接管/重载指令
// 转成可被轮询的队列。它是进程内的，不做持久化：窗口关闭即注销。
type ClientHub struct {
	mu      sync.Mutex
	clients map[string]*hubClient
	claimed bool
}

// NewClientHub 构造空的客户端注册表。
func NewClientHub() *ClientHub {
	return &ClientHub{clients: map[string]*hubClient{}}
}

// Register 登记一个窗口客户端并返回分配的 ID。
func (h *ClientHub) Register(url string) lifecycle.Client {
	client := &hubClient{
		id:       uuid.NewString(),
		url:      url,
		commands: make(chan Command, commandBuffer),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	return lifecycle.Client{ID: client.id, URL: client.url}
}

// Deregister 注销客户端，未知 ID 返回 false。
func (h *ClientHub) Deregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return false
	}
	delete(h.clients, id)
	return true
}

// Poll 取走客户端所有待执行指令，未知 ID 返回 false。
func (h *ClientHub) Poll(id string) ([]Command, bool) {
	h.mu.Lock()
	client, ok := h.clients[id]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}

	var commands []Command
	for {
		select {
		case cmd := <-client.commands:
			commands = append(commands, cmd)
		default:
			return commands, true
		}
	}
}

// Claim 实现 lifecycle.ClientGateway：标记本代引擎已接管全部客户端。
func (h *ClientHub) Claim(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.claimed = true
	return nil
}

// Claimed 报告是否发生过接管，供诊断接口输出。
func (h *ClientHub) Claimed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.claimed
}

// WindowClients 实现 lifecycle.ClientGateway。
func (h *ClientHub) WindowClients(ctx context.Context) ([]lifecycle.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]lifecycle.Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, lifecycle.Client{ID: client.id, URL: client.url})
	}
	return clients, nil
}

// Navigate 实现 lifecycle.ClientGateway：非阻塞入队，队列满或客户端
// 已注销视为通知失败。
func (h *ClientHub) Navigate(ctx context.Context, clientID, url string) error {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("client %s not registered", clientID)
	}

	select {
	case client.commands <- Command{Action: "navigate", URL: url}:
		return nil
	default:
		return fmt.Errorf("client %s command queue full", clientID)
	}
}
