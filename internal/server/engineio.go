package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Engine.IO v4, the transport under Socket.IO: HTTP long polling that may
// upgrade to a WebSocket, or a WebSocket from the first request.

const (
	eioProtocol     = "4"
	maxPayload      = 1_000_000
	sessionBuffer   = 64
	writeWait       = 10 * time.Second
	recordSeparator = "\x1e"

	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
)

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// Engine.IO error codes.
const (
	eioErrUnknownTransport = 0
	eioErrUnknownSID       = 1
	eioErrBadMethod        = 2
	eioErrBadRequest       = 3
	eioErrUnsupported      = 5
)

var eioErrMessages = map[int]string{
	eioErrUnknownTransport: "Transport unknown",
	eioErrUnknownSID:       "Session ID unknown",
	eioErrBadMethod:        "Bad handshake method",
	eioErrBadRequest:       "Bad request",
	eioErrUnsupported:      "Unsupported protocol version",
}

type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// engineIO owns the Engine.IO sessions. Message payloads are handed to
// onMessage; onClose runs once per session.
type engineIO struct {
	upgrader     *websocket.Upgrader
	logger       *slog.Logger
	pingInterval time.Duration
	pingTimeout  time.Duration
	onMessage    func(s *session, payload string)
	onClose      func(s *session)

	mu       sync.Mutex
	sessions map[string]*session
}

func newEngineIO(upgrader *websocket.Upgrader, logger *slog.Logger, onMessage func(*session, string), onClose func(*session)) *engineIO {
	return &engineIO{
		upgrader:     upgrader,
		logger:       logger,
		pingInterval: defaultPingInterval,
		pingTimeout:  defaultPingTimeout,
		onMessage:    onMessage,
		onClose:      onClose,
		sessions:     make(map[string]*session),
	}
}

// session is one Engine.IO connection. Outgoing packets wait in out until
// a poll or the WebSocket writer takes them.
type session struct {
	id     string
	eio    *engineIO
	out    chan string
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	polling  bool
	upgraded bool
	lastPong time.Time
}

func (e *engineIO) newSession() *session {
	s := &session{
		id:       uuid.NewString(),
		eio:      e,
		out:      make(chan string, sessionBuffer),
		closed:   make(chan struct{}),
		lastPong: time.Now(),
	}
	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()
	go s.heartbeat()
	return s
}

func (e *engineIO) lookup(id string) (*session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

func (e *engineIO) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// closeAll ends every session.
func (e *engineIO) closeAll() {
	e.mu.Lock()
	all := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.Unlock()
	for _, s := range all {
		s.close("server shutdown")
	}
}

func (e *engineIO) handshake(id string, upgrades []string) string {
	b, _ := json.Marshal(handshake{
		SID:          id,
		Upgrades:     upgrades,
		PingInterval: e.pingInterval.Milliseconds(),
		PingTimeout:  e.pingTimeout.Milliseconds(),
		MaxPayload:   maxPayload,
	})
	return string(eioOpen) + string(b)
}

func (e *engineIO) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != eioProtocol {
		writeEIOError(w, eioErrUnsupported)
		return
	}
	sid := q.Get("sid")
	switch q.Get("transport") {
	case "polling":
		switch {
		case r.Method == http.MethodGet && sid == "":
			e.openPolling(w)
		case r.Method == http.MethodGet:
			e.poll(w, r, sid)
		case r.Method == http.MethodPost && sid != "":
			e.post(w, r, sid)
		default:
			writeEIOError(w, eioErrBadMethod)
		}
	case "websocket":
		if r.Method != http.MethodGet {
			writeEIOError(w, eioErrBadMethod)
			return
		}
		e.serveWebSocket(w, r, sid)
	default:
		writeEIOError(w, eioErrUnknownTransport)
	}
}

func writeEIOError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": eioErrMessages[code]})
}

func writePlain(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	_, _ = io.WriteString(w, body)
}

func (e *engineIO) openPolling(w http.ResponseWriter) {
	s := e.newSession()
	writePlain(w, e.handshake(s.id, []string{"websocket"}))
}

// poll holds the request until packets are queued, then sends them all.
func (e *engineIO) poll(w http.ResponseWriter, r *http.Request, sid string) {
	s, ok := e.lookup(sid)
	if !ok {
		writeEIOError(w, eioErrUnknownSID)
		return
	}
	s.mu.Lock()
	if s.polling || s.upgraded {
		s.mu.Unlock()
		writeEIOError(w, eioErrBadRequest)
		return
	}
	s.polling = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
	}()

	var packets []string
	select {
	case p := <-s.out:
		packets = append(packets, p)
	case <-s.closed:
		writePlain(w, string(eioClose))
		return
	case <-r.Context().Done():
		return
	}
drain:
	for {
		select {
		case p := <-s.out:
			packets = append(packets, p)
		default:
			break drain
		}
	}
	writePlain(w, strings.Join(packets, recordSeparator))
}

func (e *engineIO) post(w http.ResponseWriter, r *http.Request, sid string) {
	s, ok := e.lookup(sid)
	if !ok {
		writeEIOError(w, eioErrUnknownSID)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload+1))
	if err != nil || len(body) > maxPayload {
		writeEIOError(w, eioErrBadRequest)
		return
	}
	for _, p := range strings.Split(string(body), recordSeparator) {
		s.receive(p)
	}
	writePlain(w, "ok")
}

// serveWebSocket either upgrades a polling session (sid set) or opens a
// WebSocket-only session.
func (e *engineIO) serveWebSocket(w http.ResponseWriter, r *http.Request, sid string) {
	var s *session
	if sid != "" {
		var ok bool
		if s, ok = e.lookup(sid); !ok {
			writeEIOError(w, eioErrUnknownSID)
			return
		}
		s.mu.Lock()
		upgraded := s.upgraded
		s.mu.Unlock()
		if upgraded {
			writeEIOError(w, eioErrBadRequest)
			return
		}
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxPayload)

	if s == nil {
		s = e.newSession()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(e.handshake(s.id, []string{}))); err != nil {
			_ = conn.Close()
			s.close("transport error")
			return
		}
	} else if !e.probe(s, conn) {
		_ = conn.Close()
		return
	}
	s.mu.Lock()
	s.upgraded = true
	s.mu.Unlock()

	go s.writeLoop(conn)
	s.readLoop(conn)
}

// probe runs the upgrade handshake: 2probe/3probe, then 5 from the client.
func (e *engineIO) probe(s *session, conn *websocket.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(e.pingTimeout))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		switch string(msg) {
		case string(eioPing) + "probe":
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(string(eioPong)+"probe")); err != nil {
				return false
			}
			// Releases a pending poll so the client can pause polling.
			s.send(string(eioNoop))
		case string(eioUpgrade):
			return true
		default:
			return false
		}
	}
}

// send queues a packet. A full queue drops it.
func (s *session) send(packet string) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.out <- packet:
		return true
	default:
		s.eio.logger.Debug("socket client too slow, packet dropped", "sid", s.id)
		return false
	}
}

func (s *session) receive(packet string) {
	if packet == "" {
		return
	}
	switch packet[0] {
	case eioPong:
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()
	case eioPing:
		s.send(string(eioPong) + packet[1:])
	case eioMessage:
		s.eio.onMessage(s, packet[1:])
	case eioClose:
		s.close("client close")
	}
}

func (s *session) close(reason string) {
	s.once.Do(func() {
		close(s.closed)
		s.eio.mu.Lock()
		delete(s.eio.sessions, s.id)
		s.eio.mu.Unlock()
		s.eio.logger.Debug("socket session closed", "sid", s.id, "reason", reason)
		if s.eio.onClose != nil {
			s.eio.onClose(s)
		}
	})
}

// heartbeat pings the client every interval and closes the session when
// no pong arrived in time.
func (s *session) heartbeat() {
	t := time.NewTicker(s.eio.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-t.C:
			s.mu.Lock()
			last := s.lastPong
			s.mu.Unlock()
			if time.Since(last) > s.eio.pingInterval+s.eio.pingTimeout {
				s.close("ping timeout")
				return
			}
			s.send(string(eioPing))
		}
	}
}

func (s *session) writeLoop(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		select {
		case <-s.closed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case p := <-s.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				s.close("transport error")
				return
			}
		}
	}
}

func (s *session) readLoop(conn *websocket.Conn) {
	defer s.close("transport close")
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.eio.pingInterval + s.eio.pingTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.eio.logger.Debug("websocket read failed", "sid", s.id, "error", err)
			}
			return
		}
		s.receive(string(msg))
	}
}
