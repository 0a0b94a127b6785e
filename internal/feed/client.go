package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// subscribeRef is the command ref for the initial subscribe. Each
// subscription uses its own connection, so the ref space is trivial.
const subscribeRef = 1

// Client opens logical subscriptions against the change-feed endpoint.
// Each subscription runs on its own WebSocket connection.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a feed client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// Subscribe opens a subscription for the given filter. Status transitions
// are reported through onStatus (Connecting synchronously, the rest
// asynchronously); decoded change events flow through onEvent in arrival
// order. The returned Handle tears the subscription down.
func (c *Client) Subscribe(filter StreamFilter, onStatus StatusFunc, onEvent EventFunc) (Handle, error) {
	if filter.Stream == "" || filter.Table == "" {
		return nil, ErrBadFilter
	}

	s := &subscription{
		cfg:      c.cfg,
		filter:   filter,
		logger:   c.logger.With("stream", filter.Stream),
		onStatus: onStatus,
		onEvent:  onEvent,
		done:     make(chan struct{}),
	}

	s.emitStatus(StatusConnecting)
	go s.run()

	return s, nil
}

// subscription is a single logical stream on its own connection.
type subscription struct {
	cfg    ClientConfig
	filter StreamFilter
	logger *slog.Logger

	onStatus StatusFunc
	onEvent  EventFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	finished bool // terminal status already emitted
	lastPing time.Time

	// Write serialization
	writeMu sync.Mutex

	done    chan struct{}
	arrival int64
}

// Close sends a best-effort unsubscribe and closes the connection.
// No callback fires after Close returns.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	close(s.done)

	if conn == nil {
		return nil
	}

	// Best effort: tell the provider we are leaving before tearing down.
	s.send(conn, wireCommand{
		Ref:    subscribeRef + 1,
		Action: "unsubscribe",
		Topic:  s.filter.Stream,
	})
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

// run dials, subscribes, and reads until the connection dies.
func (s *subscription) run() {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(s.cfg.URL, header)
	if err != nil {
		s.logger.Warn("feed dial failed", "error", err)
		s.terminal(StatusErrored)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.lastPing = time.Now()
	s.mu.Unlock()

	// Server-initiated pings refresh the staleness clock.
	conn.SetPingHandler(func(data string) error {
		s.mu.Lock()
		s.lastPing = time.Now()
		s.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastPing = time.Now()
		s.mu.Unlock()
		return nil
	})

	events := make([]string, 0, len(s.filter.Events))
	for _, ev := range s.filter.Events {
		events = append(events, string(ev))
	}
	err = s.send(conn, wireCommand{
		Ref:    subscribeRef,
		Action: "subscribe",
		Topic:  s.filter.Stream,
		Table:  s.filter.Table,
		Events: events,
	})
	if err != nil {
		s.logger.Warn("subscribe command failed", "error", err)
		conn.Close()
		s.terminal(StatusErrored)
		return
	}

	s.logger.Debug("feed connected", "url", s.cfg.URL, "table", s.filter.Table)

	go s.heartbeatLoop(conn)
	s.readLoop(conn)
}

// send writes a command with the configured write deadline.
func (s *subscription) send(conn *websocket.Conn, cmd wireCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop decodes server messages and dispatches callbacks.
func (s *subscription) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-s.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.terminal(StatusClosed)
			} else {
				s.logger.Warn("feed read error", "error", err)
				s.terminal(StatusErrored)
			}
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("undecodable feed message", "error", err)
			continue
		}

		switch msg.Type {
		case "subscribed":
			if msg.Ref == subscribeRef {
				s.emitStatus(StatusSubscribed)
			}

		case "change":
			if s.isClosed() {
				return
			}
			s.onEvent(ChangeEvent{
				ID:         uuid.New(),
				Stream:     s.filter.Stream,
				Kind:       OperationKind(msg.Kind),
				Payload:    msg.Payload,
				Arrival:    atomic.AddInt64(&s.arrival, 1),
				ReceivedAt: receivedAt,
			})

		case "error":
			s.logger.Warn("feed error message", "error", msg.Error)
			conn.Close()
			s.terminal(StatusErrored)
			return

		case "unsubscribed":
			// Acknowledgement of Close; the close handshake follows.

		default:
			s.logger.Debug("skipping message type", "type", msg.Type)
		}
	}
}

// heartbeatLoop keeps the connection alive and detects silent drops, the
// failure mode a suspended host produces instead of a clean close.
func (s *subscription) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			s.mu.Lock()
			lastPing := s.lastPing
			s.mu.Unlock()

			if time.Since(lastPing) > s.cfg.PingTimeout {
				s.logger.Warn("feed stale, no ping",
					"last_ping", lastPing,
					"timeout", s.cfg.PingTimeout,
				)
				conn.Close() // unblocks readLoop
				s.terminal(StatusErrored)
				return
			}
		}
	}
}

// emitStatus reports a non-terminal status unless the subscription is closed.
func (s *subscription) emitStatus(status Status) {
	if s.isClosed() || s.onStatus == nil {
		return
	}
	s.onStatus(status)
}

// terminal reports Errored/Closed exactly once per subscription.
func (s *subscription) terminal(status Status) {
	s.mu.Lock()
	if s.closed || s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	if s.onStatus != nil {
		s.onStatus(status)
	}
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
