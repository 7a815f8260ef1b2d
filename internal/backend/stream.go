package backend

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonathan/job-agent/internal/schemas"
	"github.com/jonathan/job-agent/internal/types"
)

const (
	streamReadIdleTimeout = 90 * time.Second
	streamPingInterval    = 30 * time.Second
	streamWriteTimeout    = 5 * time.Second
)

// wsStream delivers decoded frames from one WebSocket connection
type wsStream struct {
	conn          *websocket.Conn
	applicationID string
	validator     *schemas.Validator
	logger        *slog.Logger
	grace         time.Duration
	finished      atomic.Bool

	msgs    chan types.StreamMessage
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex

	mu  sync.Mutex
	err error
}

func newWSStream(conn *websocket.Conn, applicationID string, validator *schemas.Validator, logger *slog.Logger, grace time.Duration) *wsStream {
	s := &wsStream{
		conn:          conn,
		applicationID: applicationID,
		validator:     validator,
		logger:        logger,
		grace:         grace,
		msgs:          make(chan types.StreamMessage),
		done:          make(chan struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(streamReadIdleTimeout))
	conn.SetPongHandler(func(string) error {
		// After finish the grace deadline stands
		if !s.finished.Load() {
			_ = conn.SetReadDeadline(time.Now().Add(streamReadIdleTimeout))
		}
		return nil
	})

	go s.readLoop()
	go s.pingLoop()
	return s
}

func (s *wsStream) Messages() <-chan types.StreamMessage {
	return s.msgs
}

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsStream) Abandon() {
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(streamWriteTimeout))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *wsStream) abandoned() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *wsStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *wsStream) readLoop() {
	defer close(s.msgs)
	defer s.Abandon()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case s.abandoned():
				s.logger.Debug("agent stream abandoned", "application_id", s.applicationID)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.logger.Debug("agent stream closed by backend", "application_id", s.applicationID)
			case s.finished.Load():
				s.logger.Debug("agent stream ended after finish", "application_id", s.applicationID, "reason", err)
			default:
				s.logger.Warn("agent stream read failed", "application_id", s.applicationID, "error", err)
				s.setErr(&TransportError{Op: "stream " + s.applicationID, Cause: err})
			}
			return
		}
		if !s.finished.Load() {
			_ = s.conn.SetReadDeadline(time.Now().Add(streamReadIdleTimeout))
		}

		if err := s.validator.Validate(data); err != nil {
			s.logger.Warn("dropping stream frame that fails schema",
				"application_id", s.applicationID, "error", err, "raw_len", len(data))
			continue
		}
		msg, err := types.DecodeStreamMessage(data)
		if err != nil {
			s.logger.Warn("dropping malformed stream frame",
				"application_id", s.applicationID, "error", err, "raw_len", len(data))
			continue
		}

		// Late result frames may follow finish; keep reading until the
		// backend closes or the grace window runs out
		if msg.Kind == types.MessageFinish && !s.finished.Swap(true) {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.grace))
		}

		select {
		case s.msgs <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *wsStream) pingLoop() {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(streamWriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("agent stream ping failed", "application_id", s.applicationID, "error", err)
				return
			}
		}
	}
}
