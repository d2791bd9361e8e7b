package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/storyreel/api/internal/model"
)

// Client represents a WebSocket subscriber to one progress channel
// (a project ID during generation, a render job ID during rendering).
type Client struct {
	Channel string
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub maintains active WebSocket connections grouped by channel.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu sync.RWMutex
}

type broadcastMessage struct {
	Channel string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Channel] == nil {
				h.clients[client.Channel] = make(map[*Client]bool)
			}
			h.clients[client.Channel][client] = true
			h.mu.Unlock()
			log.Printf("Client registered on channel %s", client.Channel)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.Channel]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.Channel)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from channel %s", client.Channel)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.Channel]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish broadcasts a progress event to all subscribers of its channel.
func (h *Hub) Publish(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to marshal event %s: %v", ev.Type, err)
		return
	}

	h.broadcast <- &broadcastMessage{
		Channel: ev.Channel,
		Message: data,
	}
}

// SceneGenerated reports a scene asset coming back from a provider.
func (h *Hub) SceneGenerated(projectID, sceneID string, order int, kind model.AssetKind) {
	h.Publish(model.Event{
		Type:       model.EventSceneGenerated,
		Channel:    projectID,
		SceneID:    sceneID,
		SceneOrder: &order,
		AssetKind:  kind,
	})
}

// SceneCached reports a scene asset landing on fast storage.
func (h *Hub) SceneCached(projectID, sceneID string, order int, kind model.AssetKind) {
	h.Publish(model.Event{
		Type:       model.EventSceneCached,
		Channel:    projectID,
		SceneID:    sceneID,
		SceneOrder: &order,
		AssetKind:  kind,
	})
}

// SceneAnalyzed reports an analyzer verdict.
func (h *Hub) SceneAnalyzed(projectID, sceneID string, score float64, rec model.Recommendation) {
	h.Publish(model.Event{
		Type:           model.EventSceneAnalyzed,
		Channel:        projectID,
		SceneID:        sceneID,
		Score:          &score,
		Recommendation: rec,
	})
}

// SceneRegenerating reports a regeneration round starting.
func (h *Hub) SceneRegenerating(projectID, sceneID string, attempt int) {
	h.Publish(model.Event{
		Type:    model.EventSceneRegenerating,
		Channel: projectID,
		SceneID: sceneID,
		Attempt: &attempt,
	})
}

// ChunkRendered reports one chunk finishing on the render function.
func (h *Hub) ChunkRendered(jobID string, index int) {
	h.Publish(model.Event{
		Type:       model.EventChunkRendered,
		Channel:    jobID,
		ChunkIndex: &index,
	})
}

// JobComplete reports the final concatenated output.
func (h *Hub) JobComplete(jobID, outputURI string) {
	h.Publish(model.Event{
		Type:      model.EventJobComplete,
		Channel:   jobID,
		OutputURI: outputURI,
	})
}

// JobFailed reports a failed job with the chunks at fault.
func (h *Hub) JobFailed(jobID string, failedChunks []int, errMsg string) {
	h.Publish(model.Event{
		Type:               model.EventJobFailed,
		Channel:            jobID,
		FailedChunkIndices: failedChunks,
		Error:              errMsg,
	})
}

// HandleConnection handles a WebSocket connection subscribed to channel.
func (h *Hub) HandleConnection(c *websocket.Conn, channel string) {
	client := &Client{
		Channel: channel,
		Conn:    c,
		Send:    make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Writer goroutine with keep-alive pings
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var ev model.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			continue
		}

		if ev.Type == model.EventPing {
			data, _ := json.Marshal(model.Event{Type: model.EventPong, Channel: channel})
			client.Send <- data
		}
	}
}
