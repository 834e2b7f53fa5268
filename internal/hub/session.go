// Package hub owns the push-event connection to the camera hub: dialing,
// the schema handshake, the reconnect loop and outbound commands.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eufy-bridge/pkg/models"
)

// DefaultSchemaVersion is the API schema the bridge declares on connect.
const DefaultSchemaVersion = 21

const writeTimeout = 5 * time.Second

// ErrNotConnected is returned when sending without a live session.
var ErrNotConnected = errors.New("hub not connected")

// Session is one open connection. It is recreated on every reconnect.
type Session struct {
	SchemaVersion int

	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens a session to url.
func Dial(ctx context.Context, url string) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Session{conn: conn}, nil
}

// Handshake declares the schema version and subscribes to events, in order.
func (s *Session) Handshake(version int) error {
	if err := s.Send(models.SetAPISchema(version)); err != nil {
		return fmt.Errorf("set schema: %w", err)
	}
	s.SchemaVersion = version
	if err := s.Send(models.StartListening()); err != nil {
		return fmt.Errorf("start listening: %w", err)
	}
	return nil
}

// Send writes cmd as a JSON text frame, filling in a messageId when empty.
// Safe for concurrent use.
func (s *Session) Send(cmd models.Command) error {
	if cmd.MessageID == "" {
		cmd.MessageID = uuid.NewString()
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Command, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Read blocks for the next frame.
func (s *Session) Read() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

// Close sends a close frame and closes the socket. Safe to call repeatedly
// and concurrently with Read, which then returns an error.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// IsNormalClose reports whether err is a clean remote or local close.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
