package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
	"github.com/jonasttaws/nova-sonic-training/internal/codec"
	"github.com/jonasttaws/nova-sonic-training/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the token handshake.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected clients and hands session work to the
// coordinator.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	coordinator *usecase.Coordinator
	validator   *MessageValidator
	logger      *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(coordinator *usecase.Coordinator, logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		coordinator: coordinator,
		validator:   NewMessageValidator(),
		logger:      logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.clientID]; ok {
				delete(h.clients, client.clientID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteData is one frame bound for the websocket connection.
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// Client is a middleman between one websocket connection and its session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	clientID string
	logger   *zap.Logger

	// The live session, nil until start_session succeeds.
	active *usecase.ActiveSession
	mutex  sync.Mutex
}

// HandleWebSocket upgrades the connection and runs the client pumps. The
// clientID comes from the validated session token.
func HandleWebSocket(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		clientID: clientID,
		logger:   logger.With(zap.String("clientID", clientID)),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection into the session.
func (c *Client) readPump() {
	defer func() {
		c.endSession()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches a validated control message.
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid control message", zap.Error(err))
		c.sendJSON(NewErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *StartSessionMessage:
		c.handleStartSession(msg)
	case *EndTurnMessage:
		c.handleEndTurn()
	case *EndSessionMessage:
		c.handleEndSession()
	}
}

// processBinaryAudioFrame decodes and forwards one user audio frame.
// Malformed frames are dropped and the session continues.
func (c *Client) processBinaryAudioFrame(data []byte) {
	c.mutex.Lock()
	active := c.active
	c.mutex.Unlock()

	if active == nil {
		c.logger.Warn("Audio frame without active session")
		return
	}

	frame, err := codec.Decode(data)
	if err != nil {
		var codecErr *entities.CodecError
		if errors.As(err, &codecErr) {
			c.logger.Warn("Dropping malformed audio frame", zap.Error(err))
			return
		}
		c.logger.Error("Audio frame decode failed", zap.Error(err))
		return
	}

	// Blocking here throttles the read loop, which propagates backpressure
	// to the microphone producer through TCP.
	if err := active.PushAudio(context.Background(), frame); err != nil &&
		!errors.Is(err, entities.ErrSessionClosed) {
		c.logger.Error("Failed to push audio frame", zap.Error(err))
	}
}

func (c *Client) handleStartSession(msg *StartSessionMessage) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active != nil && !c.active.Session.State().Terminal() {
		c.sendJSON(NewErrorMessage("session_active", "a session is already running"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	active, err := c.hub.coordinator.StartSession(ctx, msg.Scenario, msg.Voice)
	if err != nil {
		code := "start_failed"
		switch {
		case errors.Is(err, entities.ErrCapacityExceeded):
			code = "capacity_exceeded"
		case errors.Is(err, entities.ErrNegotiationTimeout):
			code = "negotiation_timeout"
		}
		c.logger.Error("Failed to start session", zap.Error(err))
		c.sendJSON(NewErrorMessage(code, err.Error()))
		return
	}

	c.active = active
	c.sendJSON(NewSessionStartedMessage(
		active.Session.ID,
		string(active.Session.Scenario.ID),
		string(active.Session.Voice.ID),
	))

	go c.streamEvents(active)
}

func (c *Client) handleEndTurn() {
	c.mutex.Lock()
	active := c.active
	c.mutex.Unlock()

	if active == nil {
		c.logger.Warn("end_turn without active session")
		return
	}
	if err := active.EndUserTurn(context.Background()); err != nil &&
		!errors.Is(err, entities.ErrSessionClosed) {
		c.logger.Error("Failed to end user turn", zap.Error(err))
	}
}

func (c *Client) handleEndSession() {
	c.endSession()
}

func (c *Client) endSession() {
	c.mutex.Lock()
	active := c.active
	c.mutex.Unlock()

	if active == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := active.End(ctx); err != nil {
		c.logger.Error("Failed to end session", zap.Error(err))
	}
}

// streamEvents translates session events into wire messages until the
// session's terminal event arrives.
func (c *Client) streamEvents(active *usecase.ActiveSession) {
	sessionID := active.Session.ID

	for ev := range active.Events() {
		switch ev.Type {
		case entities.EventAudioChunk:
			wire, err := codec.Encode(ev.Frame)
			if err != nil {
				c.logger.Error("Failed to encode assistant audio", zap.Error(err))
				continue
			}
			c.sendRaw(WriteData{Type: websocket.BinaryMessage, Payload: wire})

		case entities.EventPartialTranscript, entities.EventFinalTranscript:
			c.sendJSON(&TranscriptMessage{
				BaseMessage: BaseMessage{Type: MessageTypeTranscript, Timestamp: now()},
				SessionID:   sessionID,
				Role:        string(ev.Role),
				Text:        ev.Text,
				Final:       ev.Type == entities.EventFinalTranscript,
			})

		case entities.EventTurnBoundary:
			c.sendJSON(&TurnBoundaryMessage{
				BaseMessage: BaseMessage{Type: MessageTypeTurnBoundary, Timestamp: now()},
				SessionID:   sessionID,
				Role:        string(ev.Role),
			})

		case entities.EventError:
			code := "transport_error"
			if errors.Is(ev.Err, entities.ErrNegotiationTimeout) {
				code = "negotiation_timeout"
			}
			c.sendJSON(NewErrorMessage(code, ev.Err.Error()))

		case entities.EventEndOfSession:
			c.sendJSON(NewSessionClosedMessage(sessionID))
		}
	}

	c.mutex.Lock()
	if c.active == active {
		c.active = nil
	}
	c.mutex.Unlock()
}

func (c *Client) sendJSON(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	c.sendRaw(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendRaw(data WriteData) {
	defer func() {
		// The send channel closes when the hub unregisters the client; late
		// session events are dropped.
		recover()
	}()
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full, dropping message")
	}
}
