package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-framed, full-duplex text channel. Implementations allow
// one concurrent reader and one concurrent writer.
type Conn interface {
	Send(ctx context.Context, frame string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}

// Compile-time interface check.
var _ Conn = (*wsConn)(nil)

// wsConn adapts a gorilla websocket connection to Conn, mapping context
// deadlines and cancellation onto socket deadlines.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, frame string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return contextOr(ctx, err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", contextOr(ctx, err)
	}
	if kind != websocket.TextMessage {
		return "", fmt.Errorf("%w: binary frame of %d bytes", ErrUnexpectedFrame, len(data))
	}
	return string(data), nil
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// contextOr prefers the context error when the socket failed because the
// context fired.
func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	return err
}
