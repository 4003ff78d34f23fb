package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 16
)

type Message struct {
	PollID string
	Data   []byte
}

// one client connected via websocket
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	PollID string
}

// Hub fans vote events out to the websocket clients watching each poll.
// Delivery is best effort: it is a live view, Kafka is the durable stream.
type Hub struct {
	Clients    map[string]map[*Client]bool
	Broadcast  chan *Message
	Register   chan *Client
	Unregister chan *Client

	done   chan struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Clients:    make(map[string]map[*Client]bool),
		Broadcast:  make(chan *Message, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.Resolve(logger).With("module", "pubsub"),
	}
}

// Run owns the client maps until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for pollID, conn := range h.Clients {
				for c := range conn {
					close(c.Send)
				}
				delete(h.Clients, pollID)
			}
			return

		case client := <-h.Register:
			conn := h.Clients[client.PollID]
			if conn == nil {
				conn = make(map[*Client]bool)
				h.Clients[client.PollID] = conn
			}
			conn[client] = true

		case client := <-h.Unregister:
			h.remove(client)

		case message := <-h.Broadcast:
			conn := h.Clients[message.PollID]
			for c := range conn {
				select {
				case c.Send <- message.Data:

				default:
					// slow consumer
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	conn := h.Clients[client.PollID]
	if conn == nil {
		return
	}
	if _, ok := conn[client]; ok {
		delete(conn, client)
		close(client.Send)
		if len(conn) == 0 {
			delete(h.Clients, client.PollID)
		}
	}
}

// Publish implements event.Sink. A full broadcast queue drops the event
// instead of holding up the vote.
func (h *Hub) Publish(ctx context.Context, ev model.VoteEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal vote event: %w", err)
	}
	select {
	case h.Broadcast <- &Message{PollID: ev.PollID, Data: data}:
	case <-h.done:
	default:
		h.logger.WarnContext(ctx, "broadcast queue full, dropping live update",
			"event", "pubsub_broadcast_dropped",
			"poll_id", ev.PollID,
			"event_id", ev.EventID,
		)
	}
	return nil
}

// ServeWS upgrades the request and streams pollID's vote events to it until
// either side goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, pollID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "poll_id", pollID, "error", err.Error())
		return
	}
	c := &Client{Hub: h, Conn: conn, Send: make(chan []byte, clientBuffer), PollID: pollID}

	select {
	case h.Register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx := r.Context()
	go c.WritePump(ctx)
	c.ReadPump(ctx)
}

// WritePump sends messages from the hub to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	defer func() {
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	for m := range c.Send {
		err := c.Conn.Write(ctx, websocket.MessageText, m)
		if err != nil {
			c.Hub.logger.Warn("error writing to client", "poll_id", c.PollID, "error", err.Error())
			break
		}
	}
}

// ReadPump drains the connection so close frames are processed; clients are
// not expected to send anything.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, _, err := c.Conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				c.Hub.logger.Debug("client disconnected", "poll_id", c.PollID)
			} else {
				c.Hub.logger.Debug("error reading from client", "poll_id", c.PollID, "error", err.Error())
			}
			break
		}
	}
}
