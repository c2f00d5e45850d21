package phoenix

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/DeBrosOfficial/seastream/pkg/logging"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session is one live transport connection. Its inbound channel is closed
// when the connection terminates and is not restartable; the socket dials a
// replacement session on reconnect.
type Session interface {
	// Send writes one frame. Safe for concurrent use.
	Send(msg *Message) error

	// Inbound returns the stream of decoded frames. Closed at termination.
	Inbound() <-chan *Message

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer establishes new sessions. The socket holds one and redials through
// it on reconnect.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

const (
	wsWriteTimeout  = 10 * time.Second
	wsInboundBuffer = 64
)

// WebsocketDialer dials Phoenix sessions over a websocket endpoint.
type WebsocketDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	Logger           *logging.ColoredLogger
}

// Dial connects to the endpoint and starts the session's read loop.
func (d *WebsocketDialer) Dial(ctx context.Context) (Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 30 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, &ConnectionError{Endpoint: d.URL, Err: err}
	}

	logger := d.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &wsSession{
		conn:    conn,
		inbound: make(chan *Message, wsInboundBuffer),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go s.readLoop()
	return s, nil
}

// wsSession wraps a websocket connection with frame encoding and a read loop.
type wsSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	inbound   chan *Message
	done      chan struct{} // closed by Close; unblocks a full inbound send
	logger    *logging.ColoredLogger
	closeOnce sync.Once
}

func (s *wsSession) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (s *wsSession) Inbound() <-chan *Message {
	return s.inbound
}

// readLoop decodes inbound frames until the connection dies. Frames that are
// not valid protocol messages are skipped, not fatal.
func (s *wsSession) readLoop() {
	defer close(s.inbound)

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.ComponentDebug(logging.ComponentTransport, "read loop terminated",
				zap.Error(err))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.ComponentWarn(logging.ComponentTransport, "skipping undecodable frame",
				zap.Int("len", len(data)),
				zap.Error(err))
			continue
		}
		select {
		case s.inbound <- &msg:
		case <-s.done:
			// Nobody is draining anymore; closing the connection does not
			// unblock a pending channel send, this does.
			return
		}
	}
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	return nil
}
