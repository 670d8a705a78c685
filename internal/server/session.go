// Package server accepts client connections, routes their packets to
// handlers and pushes notifications back out to the affected users.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"parley/internal/protocol"
)

const (
	readBufferSize = 8192
	sendBufferSize = 256
)

// errAnonymousSend reports a refused send to a connection that has not
// logged in. Only error packets and the disconnect notice bypass the check.
var errAnonymousSend = errors.New("session has no logged-in user")

// Session is the server-side state of one client connection. Reads run on a
// dedicated loop; writes are serialized through a single entry point, since
// the transport is not safe for concurrent writes.
type Session struct {
	id     uuid.UUID
	tr     io.ReadWriteCloser
	remote string
	log    *slog.Logger

	dec        protocol.Decoder
	frag       protocol.Fragmenter
	dispatcher *dispatcher

	send chan string
	wmu  sync.Mutex

	mu   sync.Mutex
	user string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	onLogin  func(*Session, string)
	onClosed func(*Session)
}

func newSession(ctx context.Context, tr io.ReadWriteCloser, remote string, log *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.New(),
		tr:     tr,
		remote: remote,
		send:   make(chan string, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.log = log.With(slog.String("session", s.id.String()), slog.String("remote", remote))
	s.dispatcher = newDispatcher(s.log)
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// User returns the nickname logged in on this session, or "".
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) setUser(nickname string) {
	s.mu.Lock()
	s.user = nickname
	s.mu.Unlock()
	if s.onLogin != nil {
		s.onLogin(s, nickname)
	}
}

// run drives the session until the connection drops or the session is
// closed. It blocks; callers start it on its own goroutine.
func (s *Session) run() {
	go s.writePump()
	s.readLoop()
	s.Close()
}

func (s *Session) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.tr.Read(buf)
		if n > 0 {
			frames, ferr := s.dec.Feed(buf[:n])
			if ferr != nil {
				s.log.Debug("dropped malformed bytes")
			}
			for _, f := range frames {
				s.dispatcher.dispatch(f)
			}
		}
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				s.log.Debug("read failed", slog.Any("error", err))
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) writePump() {
	for {
		select {
		case frame := <-s.send:
			if err := s.writeFrame(frame); err != nil {
				s.log.Debug("write failed", slog.Any("error", err))
				s.Close()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) writeFrame(frame string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.tr.Write([]byte(frame))
	return err
}

// Send queues a packet for delivery. Sending to a session with no logged-in
// user is refused for everything but error packets, so a connection that
// never identified itself cannot receive notifications.
func (s *Session) Send(p protocol.Packet) error {
	if s.User() == "" && p.Prefix() != protocol.PrefixError {
		return errAnonymousSend
	}
	return s.enqueue(p)
}

func (s *Session) sendError(errType protocol.ErrorType) {
	_ = s.enqueue(protocol.ErrorPacket{
		ErrorType: errType,
		Message:   protocol.ErrorMessage(errType),
	})
}

func (s *Session) enqueue(p protocol.Packet) error {
	frames, err := s.frag.Frames(p)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		select {
		case s.send <- frame:
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
			// A client that stopped reading does not get to stall
			// everyone else; drop and move on.
			s.log.Warn("send buffer full, dropping packet", slog.String("prefix", p.Prefix()))
			return nil
		}
	}
	return nil
}

// Close shuts the session down: best-effort disconnect notice, cancel the
// pumps, release the transport, then tell the owner. Closing twice is a
// no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if frame, err := protocol.EncodeFrame(protocol.ParameterlessPacket{Type: protocol.Disconnect}); err == nil {
			_ = s.writeFrame(frame) // peer may already be gone
		}
		s.cancel()
		_ = s.tr.Close()
		if s.onClosed != nil {
			s.onClosed(s)
		}
	})
}
