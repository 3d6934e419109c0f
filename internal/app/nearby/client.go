package nearby

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"callingcard/internal/pkg/errs"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/randx"
)

const (
	// timeout for writing a frame to the websocket.
	writeWait = 10 * time.Second

	// how long the server waits for a Pong.
	pongWait = 60 * time.Second

	// how often the server pings; must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// largest frame accepted from a client: a base64 payload plus envelope.
	maxFrameSize = 8192

	// how long a consent lookup may take before the request fails.
	consentTimeout = 5 * time.Second

	sendBuffer = 256

	// WsCloseCodeSessionReplaced tells a client that a newer connection took over its account.
	WsCloseCodeSessionReplaced = 4001
)

var errSendQueueFull = errors.New("client send queue full")
var errSendClosed = errors.New("client send queue closed")

// ConsentChecker reports whether an account has opted in to Nearby.
type ConsentChecker interface {
	HasNearbyConsent(ctx context.Context, accountID string) (bool, error)
}

// Identity is the signed-in account behind a connection.
type Identity struct {
	AccountID string
	Name      string
}

// Client is one websocket session in a vicinity.
type Client struct {
	vicinity  *Vicinity
	conn      *websocket.Conn
	consent   ConsentChecker
	accountID string
	sessionID string

	// send queues encoded frames for WritePump; guarded by sendMu once closed.
	send       chan []byte
	sendMu     sync.Mutex
	sendClosed bool

	logger zerolog.Logger
}

// NewClient binds a websocket connection to a vicinity for identity.
func NewClient(vicinity *Vicinity, conn *websocket.Conn, identity Identity, consent ConsentChecker) *Client {
	sessionID := randx.SessionID()

	return &Client{
		vicinity:  vicinity,
		conn:      conn,
		consent:   consent,
		accountID: identity.AccountID,
		sessionID: sessionID,
		send:      make(chan []byte, sendBuffer),
		logger: logx.Logger().With().
			Str("account_id", identity.AccountID).
			Str("session_id", sessionID).
			Str("vicinity", vicinity.Code).
			Logger(),
	}
}

// SessionID returns the server-assigned session id.
func (c *Client) SessionID() string {
	return c.sessionID
}

// ReadPump reads frames until the connection fails, then unregisters the client.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		c.processInboundFrame(data)
	}
}

func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.vicinity.UnregisterClient(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

func (c *Client) processInboundFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	switch frame.Type {
	case TypePublish:
		c.handlePublish(frame)

	case TypeSubscribe:
		c.handleSubscribe(frame)

	case TypeUnpublish:
		c.forward(request{client: c, op: OpUnpublish, requestID: frame.RequestID})

	case TypeUnsubscribe:
		c.forward(request{client: c, op: OpUnsubscribe, requestID: frame.RequestID})

	default:
		c.logger.Warn().Str("msg_type", string(frame.Type)).Msg("Client sent unsupported frame type")
		c.SendError(errs.NewError(errs.ErrOperationUnsupported))
	}
}

func (c *Client) handlePublish(frame Frame) {
	var payload PublishPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		c.sendStatus(frame.RequestID, Status{Op: OpPublish, Code: StatusFailure, Message: errs.NewError(errs.ErrInvalidParams).Message})
		return
	}

	if len(payload.Content) == 0 {
		c.sendStatus(frame.RequestID, Status{Op: OpPublish, Code: StatusFailure, Message: errs.NewError(errs.ErrPayloadEmpty).Message})
		return
	}

	if len(payload.Content) > MaxPayloadBytes {
		c.sendStatus(frame.RequestID, Status{Op: OpPublish, Code: StatusFailure, Message: errs.NewError(errs.ErrPayloadTooLarge, MaxPayloadBytes).Message})
		return
	}

	if !c.checkConsent(OpPublish, frame.RequestID) {
		return
	}

	c.forward(request{
		client:    c,
		op:        OpPublish,
		requestID: frame.RequestID,
		content:   payload.Content,
		ttl:       requestedTTL(payload.TTLSeconds),
	})
}

func (c *Client) handleSubscribe(frame Frame) {
	var payload SubscribePayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			c.sendStatus(frame.RequestID, Status{Op: OpSubscribe, Code: StatusFailure, Message: errs.NewError(errs.ErrInvalidParams).Message})
			return
		}
	}

	if !c.checkConsent(OpSubscribe, frame.RequestID) {
		return
	}

	c.forward(request{
		client:    c,
		op:        OpSubscribe,
		requestID: frame.RequestID,
		ttl:       requestedTTL(payload.TTLSeconds),
	})
}

// requestedTTL returns zero when the client asked for the vicinity default.
func requestedTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return TTLFromSeconds(seconds, 0)
}

// checkConsent answers NEEDS_RESOLUTION (or FAILURE on lookup errors) and returns false
// when the account may not use Nearby yet.
func (c *Client) checkConsent(op Operation, requestID string) bool {
	if c.consent == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consentTimeout)
	defer cancel()

	ok, err := c.consent.HasNearbyConsent(ctx, c.accountID)
	if err != nil {
		c.logger.Error().Err(err).Msg("Consent lookup failed")
		c.sendStatus(requestID, Status{Op: op, Code: StatusFailure, Message: "Nearby is temporarily unavailable."})
		return false
	}

	if !ok {
		c.sendStatus(requestID, Status{
			Op:         op,
			Code:       StatusNeedsResolution,
			Message:    errs.NewError(errs.ErrConsentRequired).Message,
			Resolution: ResolutionNearbyOptIn,
		})
		return false
	}

	return true
}

func (c *Client) forward(req request) {
	if !c.vicinity.submit(req) {
		c.sendStatus(req.requestID, Status{Op: req.op, Code: StatusFailure, Message: "Vicinity is closed."})
	}
}

// WritePump drains the send queue to the websocket and pings periodically.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

func (c *Client) sendFrame(t MessageType, requestID string, payload any) error {
	frame, err := NewFrame(t, requestID, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return errSendClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *Client) sendStatus(requestID string, status Status) {
	if err := c.sendFrame(TypeStatus, requestID, status); err != nil {
		c.logger.Warn().Err(err).Str("op", string(status.Op)).Msg("Failed to queue status")
	}
}

// SendError queues an ERROR frame describing err.
func (c *Client) SendError(err error) {
	payload := ErrorPayload{Code: errs.CodeOf(err), Message: err.Error()}

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		payload.Message = customErr.Message
	}

	if sendErr := c.sendFrame(TypeError, "", payload); sendErr != nil {
		c.logger.Warn().Err(sendErr).Msg("Failed to queue error frame")
	}
}

// closeSend closes the send queue so WritePump sends a close frame and exits.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// closeConn aborts the connection; ReadPump then unregisters the client.
func (c *Client) closeConn() {
	if c.conn == nil {
		c.closeSend()
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Close after failed send")
	}
}

// Kick closes the session with WsCloseCodeSessionReplaced.
func (c *Client) Kick(reason string) {
	c.logger.Warn().
		Int("close_code", WsCloseCodeSessionReplaced).
		Str("reason", reason).
		Msg("Closing replaced session.")

	if c.conn != nil {
		closeMessage := websocket.FormatCloseMessage(WsCloseCodeSessionReplaced, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to send replacement close frame.")
		}
	}

	c.closeSend()
}
