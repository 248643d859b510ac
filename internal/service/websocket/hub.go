package websocket

import (
	"context"
	"roadwatch/internal/logger"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single write so a stalled viewer cannot hold up the hub.
const writeWait = 2 * time.Second

type subscription struct {
	conn    *websocket.Conn
	session string
}

type message struct {
	session string
	data    []byte
}

// HubService fans annotated frames out to the viewers of a session.
type HubService struct {
	clients    map[*websocket.Conn]string
	broadcast  chan message
	register   chan subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan message, 16),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until the context is cancelled.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case sub := <-h.register:
			h.mutex.Lock()
			h.clients[sub.conn] = sub.session
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected to session %s. Total: %d", sub.session, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for client, session := range h.clients {
				if session != msg.session {
					continue
				}
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *HubService) Register(client *websocket.Conn, session string) {
	select {
	case h.register <- subscription{conn: client, session: session}:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a text message for every viewer of the session.
// It never blocks: the message is dropped when the queue is full or the hub stopped.
func (h *HubService) Broadcast(data []byte, session string) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- message{session: session, data: data}:
	default:
		h.logger.Warning("Viewers of session %s are behind, dropping message", session)
	}
}

func (h *HubService) GetClientCount(session string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := 0
	for _, s := range h.clients {
		if s == session {
			n++
		}
	}
	return n
}
