package server

import (
	"io"

	"github.com/gorilla/websocket"
)

// Sessions read and write raw bytes through an io.ReadWriteCloser. TCP
// connections satisfy it directly; WebSocket connections are wrapped so the
// same framing flows over both listeners.

type wsTransport struct {
	conn   *websocket.Conn
	reader io.Reader
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// Read streams the contents of consecutive WebSocket messages, so frame
// boundaries on the wire are invisible to the decoder just like on TCP.
func (t *wsTransport) Read(p []byte) (int, error) {
	for {
		if t.reader == nil {
			_, r, err := t.conn.NextReader()
			if err != nil {
				return 0, err
			}
			t.reader = r
		}
		n, err := t.reader.Read(p)
		if err == io.EOF {
			t.reader = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, err
	}
}

func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
