package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"speaker-diarizer/pkg/correlation"
	"speaker-diarizer/pkg/diarization"
	"speaker-diarizer/pkg/errors"
	"speaker-diarizer/pkg/media"
	"speaker-diarizer/pkg/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StreamPath is the websocket endpoint for live diarization
const StreamPath = "/v1/diarize/stream"

const (
	readWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
	maxFrameSize = 1 << 20
)

// StreamMessage is sent to streaming clients as JSON text frames
type StreamMessage struct {
	Type       string                     `json:"type"`
	SessionID  string                     `json:"session_id,omitempty"`
	Assignment *diarization.Assignment    `json:"assignment,omitempty"`
	Change     *diarization.SpeakerChange `json:"change,omitempty"`
	Speakers   []diarization.VoiceProfile `json:"speakers,omitempty"`
	Stream     *StreamInfo                `json:"stream,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Code       string                     `json:"code,omitempty"`
	Details    map[string]interface{}     `json:"details,omitempty"`
}

// StreamInfo describes the audio format negotiated for a session
type StreamInfo struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	BlockSize  int    `json:"block_size"`
}

// ControlMessage is a JSON command sent by streaming clients
type ControlMessage struct {
	Type      string `json:"type"`
	SpeakerID *int   `json:"speaker_id,omitempty"`
	Label     string `json:"label,omitempty"`
	From      *int   `json:"from,omitempty"`
	To        *int   `json:"to,omitempty"`
}

// StreamHandler upgrades requests to websocket diarization sessions. Each
// connection owns one engine that is only touched by its read goroutine.
type StreamHandler struct {
	logger   *logrus.Entry
	config   *Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*streamSession
	listener diarization.Listener
	closed   bool
}

// NewStreamHandler creates a handler for the streaming endpoint
func NewStreamHandler(logger *logrus.Logger, config *Config) *StreamHandler {
	if config == nil {
		config = DefaultConfig()
	}
	return &StreamHandler{
		logger: logger.WithField("component", "diarize_stream"),
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessions: make(map[string]*streamSession),
	}
}

// SetListener registers a listener that observes every session's engine.
// It must be called before the server starts accepting streams.
func (h *StreamHandler) SetListener(listener diarization.Listener) {
	h.mu.Lock()
	h.listener = listener
	h.mu.Unlock()
}

// ActiveSessions returns the number of open streaming sessions
func (h *StreamHandler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// reserve claims a session slot, failing when the limit is reached or the
// handler is shutting down
func (h *StreamHandler) reserve(session *streamSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.Wrap(errors.ErrUnavailable, "server is shutting down")
	}
	if h.config.MaxSessions > 0 && len(h.sessions) >= h.config.MaxSessions {
		return errors.NewSessionLimit(h.config.MaxSessions)
	}
	h.sessions[session.id] = session
	return nil
}

// attach hands the upgraded connection to a reserved session. It returns
// false once CloseAll has run.
func (h *StreamHandler) attach(session *streamSession, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	session.conn = conn
	return true
}

func (h *StreamHandler) release(session *streamSession) {
	h.mu.Lock()
	delete(h.sessions, session.id)
	h.mu.Unlock()
}

// CloseAll closes every open session connection and refuses new streams.
// Sessions still being upgraded are turned away by attach.
func (h *StreamHandler) CloseAll() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range conns {
		closeGoingAway(conn)
	}
}

func closeGoingAway(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
	conn.Close()
}

// parseStreamInfo reads the audio format from the query string
func (h *StreamHandler) parseStreamInfo(r *http.Request) (StreamInfo, error) {
	query := r.URL.Query()
	info := StreamInfo{
		SampleRate: h.config.SampleRate,
		BlockSize:  h.config.BlockSize,
	}

	if v := query.Get("sample_rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate < 8000 || rate > 192000 {
			return info, errors.NewInvalidInput("sample_rate must be an integer between 8000 and 192000",
				map[string]interface{}{"sample_rate": v})
		}
		info.SampleRate = rate
	}

	if v := query.Get("block_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 256 || size > 65536 {
			return info, errors.NewInvalidInput("block_size must be an integer between 256 and 65536",
				map[string]interface{}{"block_size": v})
		}
		info.BlockSize = size
	}

	info.Encoding = media.NormalizeEncoding(query.Get("encoding"))
	if info.Encoding == "" {
		return info, errors.NewUnsupportedFormat("unsupported encoding",
			map[string]interface{}{"encoding": query.Get("encoding")})
	}

	return info, nil
}

// ServeHTTP handles websocket upgrade requests
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info, err := h.parseStreamInfo(r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	session := &streamSession{
		id:      r.URL.Query().Get("session_id"),
		handler: h,
		info:    info,
		send:    make(chan []byte, sendBuffer),
	}
	if session.id == "" {
		session.id = uuid.NewString()
	}

	if err := h.reserve(session); err != nil {
		h.logger.WithError(err).WithField("max_sessions", h.config.MaxSessions).Warn("Rejecting stream")
		errors.WriteError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release(session)
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	conn.SetReadLimit(maxFrameSize)
	if !h.attach(session, conn) {
		closeGoingAway(conn)
		h.release(session)
		return
	}
	session.logger = h.logger.WithFields(correlation.ContextFields(r.Context())).WithField("session_id", session.id)

	h.mu.Lock()
	external := h.listener
	h.mu.Unlock()

	session.engine = diarization.NewEngine(
		diarization.WithSettings(h.config.Diarization),
		diarization.WithSessionID(session.id),
		diarization.WithLogger(h.logger.Logger),
		diarization.WithListener(&sessionListener{session: session, next: external}),
	)
	session.done = metrics.StartStreamSession()

	session.logger.WithFields(logrus.Fields{
		"sample_rate": info.SampleRate,
		"encoding":    info.Encoding,
		"block_size":  info.BlockSize,
	}).Info("Diarization stream opened")

	session.enqueue(StreamMessage{Type: "connected", SessionID: session.id, Stream: &info})

	go session.writePump(h.config.PingInterval)
	go session.readPump()
}

// streamSession is one websocket connection and its engine
type streamSession struct {
	id      string
	handler *StreamHandler
	logger  *logrus.Entry
	conn    *websocket.Conn
	info    StreamInfo
	engine  *diarization.Engine
	send    chan []byte
	done    func()

	pending  []float64
	consumed int64
}

// sessionListener turns engine speaker changes into client messages and
// passes every callback on to the shared listener
type sessionListener struct {
	session *streamSession
	next    diarization.Listener
}

func (l *sessionListener) OnAssignment(sessionID string, a diarization.Assignment) {
	if l.next != nil {
		l.next.OnAssignment(sessionID, a)
	}
}

func (l *sessionListener) OnSpeakerChange(c diarization.SpeakerChange) {
	l.session.enqueue(StreamMessage{Type: "speaker_change", SessionID: c.SessionID, Change: &c})
	if l.next != nil {
		l.next.OnSpeakerChange(c)
	}
}

// enqueue queues a message for the write pump, dropping it when the client is too slow
func (s *streamSession) enqueue(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal stream message")
		return
	}
	select {
	case s.send <- data:
	default:
		s.logger.WithField("type", msg.Type).Warn("Stream send buffer full, dropping message")
	}
}

func (s *streamSession) sendError(err error) {
	s.enqueue(StreamMessage{
		Type:      "error",
		SessionID: s.id,
		Error:     err.Error(),
		Code:      errors.GetErrorCode(err),
		Details:   errors.GetErrorFields(err),
	})
}

// readPump owns the engine: it decodes audio, runs diarization and handles
// control commands until the connection closes
func (s *streamSession) readPump() {
	defer func() {
		s.handler.release(s)
		close(s.send)
		s.conn.Close()
		s.done()

		stats := s.engine.Stats()
		s.logger.WithFields(logrus.Fields{
			"frames":   stats.Frames,
			"speakers": len(s.engine.Speakers()),
			"changes":  stats.SpeakerChanges,
			"seconds":  float64(s.consumed) / float64(s.info.SampleRate),
		}).Info("Diarization stream closed")
	}()

	s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Debug("WebSocket read error")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readWait))

		switch messageType {
		case websocket.BinaryMessage:
			s.handleAudio(data)
		case websocket.TextMessage:
			s.handleControl(data)
		}
	}
}

func (s *streamSession) handleAudio(data []byte) {
	metrics.RecordStreamBytes(len(data))

	samples, err := media.DecodeSamples(data, s.info.Encoding)
	if err != nil {
		s.sendError(err)
		return
	}

	s.pending = append(s.pending, samples...)
	for len(s.pending) >= s.info.BlockSize {
		block := s.pending[:s.info.BlockSize]
		timestamp := float64(s.consumed) / float64(s.info.SampleRate)

		s.engine.ProcessAudioBuffer(block, s.info.SampleRate, timestamp)
		assignment := s.engine.LastAssignment()
		s.enqueue(StreamMessage{Type: "assignment", SessionID: s.id, Assignment: &assignment})

		s.consumed += int64(s.info.BlockSize)
		s.pending = s.pending[s.info.BlockSize:]
	}

	// Keep the carry-over from pinning the whole stream in memory
	if cap(s.pending) > 4*s.info.BlockSize {
		s.pending = append([]float64(nil), s.pending...)
	}
}

func (s *streamSession) handleControl(data []byte) {
	var cmd ControlMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.sendError(errors.NewInvalidInput("control message is not valid JSON"))
		return
	}

	switch cmd.Type {
	case "speakers":
	case "rename":
		if cmd.SpeakerID == nil || cmd.Label == "" {
			s.sendError(errors.NewInvalidInput("rename needs speaker_id and label"))
			return
		}
		if !s.engine.RenameSpeaker(*cmd.SpeakerID, cmd.Label) {
			s.sendError(errors.NewNotFound("unknown speaker", map[string]interface{}{"speaker_id": *cmd.SpeakerID}))
			return
		}
	case "merge":
		if cmd.From == nil || cmd.To == nil {
			s.sendError(errors.NewInvalidInput("merge needs from and to"))
			return
		}
		if !s.engine.MergeSpeakers(*cmd.From, *cmd.To) {
			s.sendError(errors.NewInvalidInput("merge rejected", map[string]interface{}{"from": *cmd.From, "to": *cmd.To}).
				WithCode("MERGE_REJECTED"))
			return
		}
	case "reset":
		s.engine.Reset()
		s.pending = s.pending[:0]
		s.consumed = 0
	case "ping":
		s.enqueue(StreamMessage{Type: "pong", SessionID: s.id})
		return
	default:
		s.sendError(errors.NewInvalidInput("unknown control message type", map[string]interface{}{"type": cmd.Type}))
		return
	}

	s.enqueue(StreamMessage{Type: "speakers", SessionID: s.id, Speakers: s.engine.Speakers()})
}

// writePump delivers queued messages and keeps the connection alive
func (s *streamSession) writePump(pingInterval time.Duration) {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
