package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cephview/cephview/pkg/middleware"
	"github.com/cephview/cephview/pkg/overlay"
	"github.com/cephview/cephview/pkg/protocol"
	"github.com/cephview/cephview/pkg/session"
)

// viewerConn is one viewer's WebSocket. The reader runs on the handler
// goroutine; a single writer goroutine owns all data frames.
type viewerConn struct {
	srv    *Server
	sess   *session.Session
	ws     *websocket.Conn
	config WebSocketConfig
	logger *slog.Logger

	// Latest unsent snapshot. Listeners replace it with newer versions
	// and poke notify; the writer drops anything not newer than lastSent.
	mu       sync.Mutex
	pending  *overlay.Snapshot
	notify   chan struct{}
	lastSent uint64
	sentAny  bool

	replies chan protocol.Message

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, middleware.SessionParam))
	if err != nil {
		writeError(w, sessionError(err))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.metrics.RecordWebSocketError("upgrade")
		s.logger.Debug("websocket upgrade failed", "session_id", sess.ID, "error", err)
		return
	}

	c := &viewerConn{
		srv:     s,
		sess:    sess,
		ws:      ws,
		config:  s.config.WebSocket,
		logger:  s.logger.With("session_id", sess.ID),
		notify:  make(chan struct{}, 1),
		replies: make(chan protocol.Message, s.config.WebSocket.ReplyBuffer),
		closed:  make(chan struct{}),
	}

	s.trackConn(c)
	defer s.untrackConn(c)
	s.metrics.RecordWebSocketOpen()
	defer s.metrics.RecordWebSocketClose()

	detach := sess.Attach()
	defer detach()

	reg := sess.Registry()
	unsubscribe := reg.Subscribe(c.offer)
	defer unsubscribe()
	c.offer(reg.Snapshot())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	c.readLoop()
	c.close()
	wg.Wait()
}

// offer queues a snapshot for sending. It never blocks, so it is safe to
// call from registry listeners.
func (c *viewerConn) offer(snap overlay.Snapshot) {
	c.mu.Lock()
	if c.pending == nil || snap.Version > c.pending.Version {
		c.pending = &snap
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// take returns the pending snapshot if it is newer than the last one sent.
func (c *viewerConn) take() (overlay.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.pending
	c.pending = nil
	if snap == nil || (c.sentAny && snap.Version <= c.lastSent) {
		return overlay.Snapshot{}, false
	}
	c.lastSent = snap.Version
	c.sentAny = true
	return *snap, true
}

func (c *viewerConn) readLoop() {
	c.ws.SetReadLimit(protocol.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	// A pong is viewer activity: it keeps a passive viewer's session alive.
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.srv.sessions.Touch(c.sess.ID)
		return nil
	})

	reg := c.sess.Registry()
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.srv.metrics.RecordWebSocketError("too_large")
			case websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure):
				c.srv.metrics.RecordWebSocketError("read")
				c.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		// Touch the session; stop if it has ended meanwhile.
		if _, err := c.srv.sessions.Get(c.sess.ID); err != nil {
			return
		}

		if msgType != websocket.TextMessage {
			c.reply(protocol.ErrorMessage(protocol.ErrMalformed))
			continue
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			c.srv.metrics.RecordWebSocketError("decode")
			c.reply(protocol.ErrorMessage(err))
			continue
		}
		changed := cmd.Apply(reg)
		c.srv.metrics.RecordOperation(string(cmd.Op), changed)
	}
}

// reply queues an error message, waiting for the writer if the buffer is full.
func (c *viewerConn) reply(msg protocol.Message) {
	select {
	case c.replies <- msg:
	case <-c.closed:
	}
}

// writeLoop owns all writes. When it exits for any reason it closes the
// socket and releases a reader waiting in reply.
func (c *viewerConn) writeLoop() {
	defer c.close()
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case <-c.notify:
			snap, ok := c.take()
			if !ok {
				continue
			}
			if !c.write(protocol.SnapshotMessage(snap)) {
				return
			}

		case msg := <-c.replies:
			if !c.write(msg) {
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.srv.metrics.RecordWebSocketError("ping")
				return
			}

		case <-c.sess.Done():
			c.write(protocol.EndedMessage())
			c.closeFrame(websocket.CloseNormalClosure, "session ended")
			return

		case <-c.closed:
			c.closeFrame(websocket.CloseGoingAway, "server closing")
			return
		}
	}
}

func (c *viewerConn) write(msg protocol.Message) bool {
	data, err := msg.Encode()
	if err != nil {
		c.logger.Error("encode message failed", "error", err)
		return true
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.srv.metrics.RecordWebSocketError("write")
		c.logger.Debug("websocket write error", "error", err)
		return false
	}
	return true
}

func (c *viewerConn) closeFrame(code int, text string) {
	deadline := time.Now().Add(c.config.WriteTimeout)
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

// close stops the writer, which sends a close frame and closes the socket.
// It is safe to call more than once.
func (c *viewerConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
