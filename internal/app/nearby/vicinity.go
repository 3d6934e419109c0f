package nearby

import (
	"bytes"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"callingcard/internal/pkg/logx"
)

const (
	requestChannelBuffer = 256

	// VicinityInactivityTimeout is how long an empty vicinity lingers before shutting down.
	VicinityInactivityTimeout = 5 * time.Minute
)

// CleanupMsg tells the Manager that a vicinity's run loop has exited.
type CleanupMsg struct {
	Vicinity *Vicinity
}

type publication struct {
	content    []byte
	timer      *time.Timer
	generation uint64
}

type subscription struct {
	timer      *time.Timer
	generation uint64
}

type request struct {
	client    *Client
	op        Operation
	requestID string
	content   []byte
	ttl       time.Duration
}

type expiration struct {
	accountID  string
	op         Operation
	generation uint64
}

// Vicinity is the hub of one vicinity code. All publication and subscription state is
// owned by the Run goroutine; other goroutines talk to it over channels.
type Vicinity struct {
	// Code identifies the vicinity.
	Code string

	defaultTTL time.Duration

	// clients, publications and subscriptions are keyed by account id.
	clients       map[string]*Client
	publications  map[string]*publication
	subscriptions map[string]*subscription
	generation    uint64

	register    chan *Client
	unregister  chan *Client
	requests    chan request
	expirations chan expiration

	cleanupChan chan<- CleanupMsg

	stopChan chan struct{}
	stopOnce sync.Once

	// done is closed when Run returns.
	done chan struct{}

	shutdownTimer *time.Timer

	// mu guards clients for readers outside the run loop.
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewVicinity returns a vicinity ready to Run.
func NewVicinity(code string, defaultTTL time.Duration, cleanupChan chan<- CleanupMsg) *Vicinity {
	return &Vicinity{
		Code:          code,
		defaultTTL:    defaultTTL,
		clients:       make(map[string]*Client),
		publications:  make(map[string]*publication),
		subscriptions: make(map[string]*subscription),
		register:      make(chan *Client),
		unregister:    make(chan *Client, requestChannelBuffer),
		requests:      make(chan request, requestChannelBuffer),
		expirations:   make(chan expiration, requestChannelBuffer),
		cleanupChan:   cleanupChan,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
		shutdownTimer: time.NewTimer(VicinityInactivityTimeout),
		logger:        logx.Logger().With().Str("vicinity", code).Logger(),
	}
}

// Stop ends the run loop. It is safe to call more than once.
func (v *Vicinity) Stop() {
	v.stopOnce.Do(func() {
		v.logger.Info().Msg("Received stop signal. Stopping vicinity.")
		close(v.stopChan)
	})
}

// Done is closed once the run loop has exited.
func (v *Vicinity) Done() <-chan struct{} {
	return v.done
}

// Stopped reports whether the run loop has exited.
func (v *Vicinity) Stopped() bool {
	select {
	case <-v.done:
		return true
	default:
		return false
	}
}

// Size returns the number of connected clients.
func (v *Vicinity) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.clients)
}

// RegisterClient hands c to the run loop. It returns false if the vicinity has shut down.
func (v *Vicinity) RegisterClient(c *Client) bool {
	select {
	case v.register <- c:
		return true
	case <-v.done:
		return false
	}
}

// UnregisterClient removes c; stale or unknown clients are ignored.
func (v *Vicinity) UnregisterClient(c *Client) {
	select {
	case v.unregister <- c:
	case <-v.done:
	}
}

func (v *Vicinity) submit(req request) bool {
	select {
	case v.requests <- req:
		return true
	case <-v.done:
		return false
	}
}

// Run is the vicinity event loop.
func (v *Vicinity) Run() {
	defer v.finish()

	for {
		select {
		case c := <-v.register:
			v.handleRegister(c)

		case c := <-v.unregister:
			v.handleUnregister(c)

		case req := <-v.requests:
			v.handleRequest(req)

		case exp := <-v.expirations:
			v.handleExpiration(exp)

		case <-v.shutdownTimer.C:
			v.logger.Info().Msgf("Vicinity inactivity timeout (%s) reached.", VicinityInactivityTimeout)
			return

		case <-v.stopChan:
			v.logger.Info().Msg("Vicinity forced stop initiated.")
			return
		}
	}
}

func (v *Vicinity) finish() {
	v.shutdownTimer.Stop()

	for _, p := range v.publications {
		p.timer.Stop()
	}
	for _, s := range v.subscriptions {
		s.timer.Stop()
	}

	v.mu.Lock()
	for _, c := range v.clients {
		c.closeSend()
	}
	v.clients = make(map[string]*Client)
	v.mu.Unlock()

	select {
	case v.cleanupChan <- CleanupMsg{Vicinity: v}:
	default:
		v.logger.Warn().Msg("Manager cleanup channel full. Skipping cleanup notification.")
	}

	close(v.done)

	v.logger.Info().Msg("Vicinity run loop finished.")
}

func (v *Vicinity) handleRegister(c *Client) {
	if v.shutdownTimer.Stop() {
		select {
		case <-v.shutdownTimer.C:
		default:
		}
	}

	if existing, ok := v.clients[c.accountID]; ok && existing != c {
		v.logger.Warn().
			Str("account_id", c.accountID).
			Msg("Account already connected. Replacing old session.")

		v.dropClient(existing)
		existing.Kick("Session replaced by a new connection.")
	}

	v.mu.Lock()
	v.clients[c.accountID] = c
	total := len(v.clients)
	v.mu.Unlock()

	v.logger.Info().
		Str("account_id", c.accountID).
		Str("session_id", c.sessionID).
		Int("total_clients", total).
		Msg("Client joined vicinity.")

	v.deliver(c, TypeWelcome, "", WelcomePayload{SessionID: c.sessionID, Vicinity: v.Code})
}

func (v *Vicinity) handleUnregister(c *Client) {
	current, ok := v.clients[c.accountID]
	if !ok || current != c {
		v.logger.Debug().Str("session_id", c.sessionID).Msg("Ignoring unregister for stale session.")
		c.closeSend()
		return
	}

	v.dropClient(c)
	c.closeSend()

	v.logger.Info().
		Str("account_id", c.accountID).
		Int("total_clients", v.Size()).
		Msg("Client left vicinity.")

	if v.Size() == 0 {
		v.shutdownTimer.Reset(VicinityInactivityTimeout)
	}
}

// dropClient removes every trace of c, notifying subscribers of its publication.
func (v *Vicinity) dropClient(c *Client) {
	v.mu.Lock()
	delete(v.clients, c.accountID)
	v.mu.Unlock()

	v.removePublication(c.accountID)
	v.removeSubscription(c.accountID)
}

func (v *Vicinity) handleRequest(req request) {
	if current, ok := v.clients[req.client.accountID]; !ok || current != req.client {
		v.logger.Debug().Str("session_id", req.client.sessionID).Msg("Dropping request from stale session.")
		return
	}

	accountID := req.client.accountID

	switch req.op {
	case OpPublish:
		v.publish(accountID, req.content, v.ttl(req.ttl))
	case OpUnpublish:
		v.removePublication(accountID)
	case OpSubscribe:
		v.subscribe(accountID, v.ttl(req.ttl))
	case OpUnsubscribe:
		v.removeSubscription(accountID)
	default:
		v.deliver(req.client, TypeStatus, req.requestID, Status{Op: req.op, Code: StatusFailure, Message: "Unsupported operation."})
		return
	}

	v.deliver(req.client, TypeStatus, req.requestID, Status{Op: req.op, Code: StatusSuccess})
}

func (v *Vicinity) ttl(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if v.defaultTTL > 0 {
		return v.defaultTTL
	}
	return DefaultTTL
}

func (v *Vicinity) publish(accountID string, content []byte, ttl time.Duration) {
	changed := true

	if existing, ok := v.publications[accountID]; ok {
		existing.timer.Stop()

		if bytes.Equal(existing.content, content) {
			changed = false
		} else {
			v.notifySubscribers(TypeLost, accountID, existing.content)
		}
	}

	generation := v.nextGeneration()
	v.publications[accountID] = &publication{
		content:    content,
		generation: generation,
		timer:      v.scheduleExpiry(accountID, OpPublish, generation, ttl),
	}

	if changed {
		v.notifySubscribers(TypeFound, accountID, content)
	}
}

func (v *Vicinity) removePublication(accountID string) {
	p, ok := v.publications[accountID]
	if !ok {
		return
	}

	p.timer.Stop()
	delete(v.publications, accountID)
	v.notifySubscribers(TypeLost, accountID, p.content)
}

func (v *Vicinity) subscribe(accountID string, ttl time.Duration) {
	existing, resubscribe := v.subscriptions[accountID]
	if resubscribe {
		existing.timer.Stop()
	}

	generation := v.nextGeneration()
	v.subscriptions[accountID] = &subscription{
		generation: generation,
		timer:      v.scheduleExpiry(accountID, OpSubscribe, generation, ttl),
	}

	if resubscribe {
		return
	}

	subscriber := v.clients[accountID]
	for publisherID, p := range v.publications {
		if publisherID == accountID {
			continue
		}
		v.deliver(subscriber, TypeFound, "", MessagePayload{Content: p.content})
	}
}

func (v *Vicinity) removeSubscription(accountID string) {
	s, ok := v.subscriptions[accountID]
	if !ok {
		return
	}

	s.timer.Stop()
	delete(v.subscriptions, accountID)
}

func (v *Vicinity) handleExpiration(exp expiration) {
	switch exp.op {
	case OpPublish:
		p, ok := v.publications[exp.accountID]
		if !ok || p.generation != exp.generation {
			return
		}
		v.removePublication(exp.accountID)

	case OpSubscribe:
		s, ok := v.subscriptions[exp.accountID]
		if !ok || s.generation != exp.generation {
			return
		}
		v.removeSubscription(exp.accountID)

	default:
		return
	}

	v.logger.Info().Str("account_id", exp.accountID).Str("op", string(exp.op)).Msg("Operation expired.")

	if c, ok := v.clients[exp.accountID]; ok {
		v.deliver(c, TypeExpired, "", ExpiredPayload{Op: exp.op})
	}
}

func (v *Vicinity) scheduleExpiry(accountID string, op Operation, generation uint64, ttl time.Duration) *time.Timer {
	return time.AfterFunc(ttl, func() {
		select {
		case v.expirations <- expiration{accountID: accountID, op: op, generation: generation}:
		case <-v.done:
		}
	})
}

func (v *Vicinity) nextGeneration() uint64 {
	v.generation++
	return v.generation
}

func (v *Vicinity) notifySubscribers(t MessageType, publisherID string, content []byte) {
	for subscriberID := range v.subscriptions {
		if subscriberID == publisherID {
			continue
		}
		if c, ok := v.clients[subscriberID]; ok {
			v.deliver(c, t, "", MessagePayload{Content: content})
		}
	}
}

// deliver queues a frame for c. A client whose queue is full is disconnected;
// its read pump then unregisters it.
func (v *Vicinity) deliver(c *Client, t MessageType, requestID string, payload any) {
	if c == nil {
		return
	}

	if err := c.sendFrame(t, requestID, payload); err != nil {
		v.logger.Warn().
			Err(err).
			Str("session_id", c.sessionID).
			Str("msg_type", string(t)).
			Msg("Client send failed, closing connection.")
		c.closeConn()
	}
}
