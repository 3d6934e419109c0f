package session

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"callingcard/internal/app/nearby"
)

// readLoop dispatches server frames until the connection ends.
func (s *Session) readLoop(conn *websocket.Conn, generation int) {
	for {
		var frame nearby.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			s.connectionLost(generation, err)
			return
		}

		if !s.current(generation) {
			return
		}

		s.dispatch(frame)
	}
}

func (s *Session) current(generation int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == generation
}

func (s *Session) connectionLost(generation int, err error) {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.state = stateDisconnected
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = nil
	s.pending = make(map[string]pendingRequest)
	callbacks := s.callbacks
	s.mu.Unlock()

	if websocket.IsCloseError(err, nearby.WsCloseCodeSessionReplaced) {
		s.logger.Warn().Msg("Session replaced by another connection.")
	} else {
		s.logger.Warn().Err(err).Msg("Connection to nearby service lost.")
	}

	if callbacks != nil {
		callbacks.OnConnectionSuspended(err)
	}
}

func (s *Session) dispatch(frame nearby.Frame) {
	switch frame.Type {
	case nearby.TypeWelcome:
		var welcome nearby.WelcomePayload
		if err := json.Unmarshal(frame.Payload, &welcome); err == nil {
			s.logger.Debug().Str("session_id", welcome.SessionID).Msg("Joined vicinity.")
		}

	case nearby.TypeStatus:
		s.dispatchStatus(frame)

	case nearby.TypeFound, nearby.TypeLost:
		s.dispatchMessage(frame)

	case nearby.TypeExpired:
		s.dispatchExpired(frame)

	case nearby.TypeError:
		var p nearby.ErrorPayload
		_ = json.Unmarshal(frame.Payload, &p)
		s.logger.Warn().Int("code", p.Code).Str("message", p.Message).Msg("Nearby service reported an error.")

	default:
		s.logger.Warn().Str("msg_type", string(frame.Type)).Msg("Ignoring unknown frame.")
	}
}

func (s *Session) dispatchStatus(frame nearby.Frame) {
	var status nearby.Status
	if err := json.Unmarshal(frame.Payload, &status); err != nil {
		s.logger.Warn().Err(err).Msg("Malformed STATUS frame.")
		return
	}

	s.mu.Lock()
	pending, ok := s.pending[frame.RequestID]
	delete(s.pending, frame.RequestID)
	s.mu.Unlock()

	if ok && pending.callback != nil {
		pending.callback(status)
	}
}

func (s *Session) dispatchMessage(frame nearby.Frame) {
	var msg nearby.MessagePayload
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		s.logger.Warn().Err(err).Str("msg_type", string(frame.Type)).Msg("Malformed message frame.")
		return
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return
	}

	if frame.Type == nearby.TypeFound {
		listener.OnFound(msg.Content)
	} else {
		listener.OnLost(msg.Content)
	}
}

func (s *Session) dispatchExpired(frame nearby.Frame) {
	var expired nearby.ExpiredPayload
	if err := json.Unmarshal(frame.Payload, &expired); err != nil {
		s.logger.Warn().Err(err).Msg("Malformed EXPIRED frame.")
		return
	}

	s.mu.Lock()
	var onExpired func()
	switch expired.Op {
	case nearby.OpPublish:
		onExpired, s.publishOn = s.publishOn, nil
	case nearby.OpSubscribe:
		onExpired, s.subscribeOn = s.subscribeOn, nil
		s.listener = nil
	}
	s.mu.Unlock()

	if onExpired != nil {
		onExpired()
	}
}
