/*
Package session is the client side of the Nearby discovery service.

A Session wraps one websocket connection to a vicinity and exposes the
publish/subscribe capability the Calling Card controller consumes. Every call is
asynchronous: connection callbacks, request results, FOUND/LOST messages and expiry
notices are all invoked on the session's reader goroutine, never on the caller's.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"callingcard/internal/app/nearby"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/randx"
)

// ErrNotConnected is reported for requests issued without a live connection.
var ErrNotConnected = errors.New("session: not connected")

const (
	dialTimeout = 10 * time.Second
	writeWait   = 10 * time.Second
)

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
)

// ConnectionCallbacks receives connection state changes.
type ConnectionCallbacks interface {
	OnConnected()
	OnConnectionSuspended(cause error)
	OnConnectionFailed(err error)
}

// MessageListener receives subscription events.
type MessageListener interface {
	OnFound(content []byte)
	OnLost(content []byte)
}

// ResultCallback receives the outcome of a request.
type ResultCallback func(status nearby.Status)

// PublishOptions configure a publication.
type PublishOptions struct {
	// TTL of zero uses the server default.
	TTL time.Duration

	// OnExpired is invoked when the server expires the publication.
	OnExpired func()
}

// SubscribeOptions configure a subscription.
type SubscribeOptions struct {
	TTL       time.Duration
	OnExpired func()
}

// Config locates the service.
type Config struct {
	// ServerURL is the http(s) base URL of the service.
	ServerURL string

	// Vicinity is the code to join.
	Vicinity string

	// Token returns the current identity token.
	Token func() string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Session is a connection to the Nearby discovery service.
type Session struct {
	cfg       Config
	callbacks ConnectionCallbacks

	// mu guards every field below.
	mu          sync.Mutex
	state       state
	conn        *websocket.Conn
	generation  int
	pending     map[string]pendingRequest
	listener    MessageListener
	publishOn   func()
	subscribeOn func()

	// writeMu serialises websocket writes.
	writeMu sync.Mutex

	logger zerolog.Logger
}

type pendingRequest struct {
	op       nearby.Operation
	callback ResultCallback
}

// New returns a disconnected session.
func New(cfg Config) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	return &Session{
		cfg:     cfg,
		pending: make(map[string]pendingRequest),
		logger:  logx.Component("NearbySession").With().Str("vicinity", cfg.Vicinity).Logger(),
	}
}

// SetConnectionCallbacks installs the receiver of connection state changes.
func (s *Session) SetConnectionCallbacks(callbacks ConnectionCallbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = callbacks
}

// IsConnected reports whether the websocket is open.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateConnected
}

// IsConnecting reports whether a dial is in flight.
func (s *Session) IsConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateConnecting
}

// Connect dials the service in the background. It is a no-op unless disconnected.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.state != stateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = stateConnecting
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	go s.dial(generation)
}

func (s *Session) dial(generation int) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	endpoint, err := WebsocketURL(s.cfg.ServerURL, s.cfg.Vicinity)
	if err != nil {
		s.failConnect(generation, err)
		return
	}

	header := http.Header{}
	if s.cfg.Token != nil {
		if token := s.cfg.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("dial %s: %w (HTTP %d)", endpoint, err, resp.StatusCode)
		}
		s.failConnect(generation, err)
		return
	}

	s.mu.Lock()
	if s.generation != generation || s.state != stateConnecting {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.state = stateConnected
	s.conn = conn
	callbacks := s.callbacks
	s.mu.Unlock()

	s.logger.Info().Msg("Connected to nearby service.")

	go s.readLoop(conn, generation)

	if callbacks != nil {
		callbacks.OnConnected()
	}
}

func (s *Session) failConnect(generation int, err error) {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}
	s.state = stateDisconnected
	callbacks := s.callbacks
	s.mu.Unlock()

	s.logger.Warn().Err(err).Msg("Connection to nearby service failed.")

	if callbacks != nil {
		callbacks.OnConnectionFailed(err)
	}
}

// Disconnect closes the connection. Pending requests are dropped without a result.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.generation++
	s.state = stateDisconnected
	s.conn = nil
	s.pending = make(map[string]pendingRequest)
	s.listener = nil
	s.publishOn = nil
	s.subscribeOn = nil
	s.mu.Unlock()

	if conn == nil {
		return
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	s.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Close error on disconnect")
	}
}

// Publish broadcasts content to the vicinity, replacing any previous publication.
func (s *Session) Publish(content []byte, opts PublishOptions, callback ResultCallback) {
	payload := nearby.PublishPayload{Content: content, TTLSeconds: seconds(opts.TTL)}

	s.mu.Lock()
	s.publishOn = opts.OnExpired
	s.mu.Unlock()

	s.request(nearby.TypePublish, nearby.OpPublish, payload, callback)
}

// Unpublish withdraws the publication.
func (s *Session) Unpublish(callback ResultCallback) {
	s.mu.Lock()
	s.publishOn = nil
	s.mu.Unlock()

	s.request(nearby.TypeUnpublish, nearby.OpUnpublish, nil, callback)
}

// Subscribe starts delivering FOUND/LOST events to listener.
func (s *Session) Subscribe(listener MessageListener, opts SubscribeOptions, callback ResultCallback) {
	s.mu.Lock()
	s.listener = listener
	s.subscribeOn = opts.OnExpired
	s.mu.Unlock()

	s.request(nearby.TypeSubscribe, nearby.OpSubscribe, nearby.SubscribePayload{TTLSeconds: seconds(opts.TTL)}, callback)
}

// Unsubscribe stops event delivery.
func (s *Session) Unsubscribe(callback ResultCallback) {
	s.mu.Lock()
	s.listener = nil
	s.subscribeOn = nil
	s.mu.Unlock()

	s.request(nearby.TypeUnsubscribe, nearby.OpUnsubscribe, nil, callback)
}

func (s *Session) request(t nearby.MessageType, op nearby.Operation, payload any, callback ResultCallback) {
	requestID := randx.RequestID()

	frame, err := nearby.NewFrame(t, requestID, payload)
	if err != nil {
		s.fail(op, callback, err)
		return
	}

	s.mu.Lock()
	conn := s.conn
	if s.state != stateConnected || conn == nil {
		s.mu.Unlock()
		s.fail(op, callback, ErrNotConnected)
		return
	}
	if callback != nil {
		s.pending[requestID] = pendingRequest{op: op, callback: callback}
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	err = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err == nil {
		err = conn.WriteJSON(frame)
	}
	s.writeMu.Unlock()

	if err != nil {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
		s.fail(op, callback, err)
	}
}

// fail reports a local failure on a separate goroutine, like any other result.
func (s *Session) fail(op nearby.Operation, callback ResultCallback, err error) {
	s.logger.Warn().Err(err).Str("op", string(op)).Msg("Request failed locally.")

	if callback == nil {
		return
	}

	status := nearby.Status{Op: op, Code: nearby.StatusFailure, Message: err.Error()}
	go callback(status)
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

// WebsocketURL derives the websocket endpoint of vicinity from an http(s) base URL.
func WebsocketURL(serverURL, vicinity string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/nearby/" + url.PathEscape(vicinity)
	return u.String(), nil
}
