package live

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSDialer connects to a WebSocket event source. Identity is appended to
// the URL's query string.
type WSDialer struct {
	URL     string
	Timeout time.Duration
	Header  http.Header
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context, id Identity) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse live url: %w", err)
	}
	q := u.Query()
	for k, v := range id.Query() {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	dialer := ws.Dialer{Timeout: d.Timeout}
	if len(d.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}
	conn, br, _, err := dialer.Dial(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return newWSConn(conn, br), nil
}

// wsConn reads data frames from the server side of a WebSocket. Control
// frames (ping, pong, close) are answered by wsutil.
type wsConn struct {
	conn net.Conn
	rw   io.ReadWriter
	once sync.Once
}

func newWSConn(conn net.Conn, br *bufio.Reader) *wsConn {
	c := &wsConn{conn: conn, rw: conn}
	if br != nil {
		// the server sent frames together with the handshake response
		c.rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}
	return c
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			return nil, err
		}
		if op == ws.OpText || op == ws.OpBinary {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		err = c.conn.Close()
	})
	return err
}
