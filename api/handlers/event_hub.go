package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/observability"
	"go.uber.org/zap"
)

// clientBuffer bounds the progress events queued for one client
const clientBuffer = 64

// Event types pushed to /api/v1/events subscribers
const (
	EventProgress   = "progress"
	EventCompletion = "completion"
	EventFailure    = "failure"
)

// Event is one job notification as sent to WebSocket clients
type Event struct {
	Type     string            `json:"type"`
	JobID    string            `json:"job_id"`
	Message  string            `json:"message,omitempty"`
	Progress *domain.Progress  `json:"progress,omitempty"`
	Job      *domain.JobRecord `json:"job,omitempty"`
}

// EventHub fans job notifications out to WebSocket clients.
// It is registered on the download service as an Observer.
type EventHub struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	clients map[*eventClient]struct{}
}

// eventClient queues the events of one connection in publish order
type eventClient struct {
	mu    sync.Mutex
	queue [][]byte
	wake  chan struct{}
}

func newEventClient() *eventClient {
	return &eventClient{wake: make(chan struct{}, 1)}
}

// offer queues data. Progress events are dropped while the queue is full;
// completion and failure events are always queued so followers see the end.
func (c *eventClient) offer(data []byte, droppable bool) bool {
	c.mu.Lock()
	if droppable && len(c.queue) >= clientBuffer {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, data)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything queued
func (c *eventClient) take() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.queue
	c.queue = nil
	return batch
}

// NewEventHub creates a new event hub; metrics may be nil
func NewEventHub(log *zap.Logger, metrics *observability.Metrics) *EventHub {
	return &EventHub{
		logger:  log,
		metrics: metrics,
		clients: make(map[*eventClient]struct{}),
	}
}

// OnProgress broadcasts a progress event
func (h *EventHub) OnProgress(p domain.Progress) {
	h.broadcast(Event{Type: EventProgress, JobID: p.JobID, Message: p.String(), Progress: &p})
}

// OnCompletion broadcasts a completion event
func (h *EventHub) OnCompletion(r domain.JobRecord) {
	h.broadcast(Event{Type: EventCompletion, JobID: r.ID, Message: r.ResultMessage, Job: &r})
}

// OnFailure broadcasts a failure event
func (h *EventHub) OnFailure(r domain.JobRecord) {
	h.broadcast(Event{Type: EventFailure, JobID: r.ID, Message: r.ErrorMessage, Job: &r})
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast never blocks; a slow client misses progress events only
func (h *EventHub) broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	droppable := e.Type == EventProgress
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.offer(data, droppable) {
			h.logger.Debug("Dropping event for slow client", zap.String("job_id", e.JobID), zap.String("type", e.Type))
		}
	}
}

func (h *EventHub) subscribe() *eventClient {
	c := newEventClient()
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.setClients(count)
	return c
}

func (h *EventHub) unsubscribe(c *eventClient) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	h.setClients(count)
}

func (h *EventHub) setClients(count int) {
	if h.metrics != nil {
		h.metrics.SetEventClients(count)
	}
}

// HandleWebSocket handles GET /api/v1/events
func (h *EventHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	client := h.subscribe()
	defer h.unsubscribe(client)

	h.logger.Info("Event client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	done := readUntilClosed(conn)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.wake:
			for _, data := range client.take() {
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					h.logger.Debug("Failed to send event", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
