package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"parley/internal/chat"
)

// Manager owns every live session and the connection-to-user routing table
// the notifier uses to reach online users.
type Manager struct {
	log *slog.Logger
	dir *chat.Directory

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	byUser   map[string]*Session
}

func NewManager(log *slog.Logger, dir *chat.Directory) *Manager {
	return &Manager{
		log:      log,
		dir:      dir,
		sessions: make(map[uuid.UUID]*Session),
		byUser:   make(map[string]*Session),
	}
}

// Serve accepts TCP connections until ctx is cancelled.
func (m *Manager) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.log.Info("client connected", slog.String("remote", conn.RemoteAddr().String()))
		m.startSession(ctx, conn, conn.RemoteAddr().String())
	}
}

// ServeWS serves the same protocol over WebSocket for clients that cannot
// open a raw TCP connection.
func (m *Manager) ServeWS(ctx context.Context, addr string) error {
	upgrader := &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.log.Error("websocket upgrade failed", slog.Any("error", err))
			return
		}
		m.log.Info("client connected", slog.String("remote", r.RemoteAddr), slog.String("transport", "ws"))
		m.startSession(ctx, newWSTransport(ws), r.RemoteAddr)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (m *Manager) startSession(ctx context.Context, tr io.ReadWriteCloser, remote string) *Session {
	s := newSession(ctx, tr, remote, m.log)
	s.onLogin = m.sessionLoggedIn
	s.onClosed = m.sessionClosed
	registerHandlers(s.dispatcher, s, m.dir)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	go s.run()
	return s
}

func (m *Manager) sessionLoggedIn(s *Session, nickname string) {
	m.mu.Lock()
	m.byUser[nickname] = s
	m.mu.Unlock()
	m.log.Info("user logged in", slog.String("user", nickname), slog.String("session", s.id.String()))
}

func (m *Manager) sessionClosed(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	nickname := s.User()
	if nickname != "" && m.byUser[nickname] == s {
		delete(m.byUser, nickname)
	}
	m.mu.Unlock()

	if nickname != "" {
		m.dir.Logout(nickname)
	}
	m.log.Info("client disconnected", slog.String("remote", s.remote), slog.String("user", nickname))
}

// SessionFor returns the live session of an online user.
func (m *Manager) SessionFor(nickname string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[nickname]
	return s, ok
}

// Count reports the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every open session, flushing disconnect notices. Called
// during shutdown after the accept loops have stopped.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	if len(sessions) > 0 {
		m.log.Info("disconnecting clients", slog.Int("count", len(sessions)))
	}
	for _, s := range sessions {
		s.Close()
	}
}
