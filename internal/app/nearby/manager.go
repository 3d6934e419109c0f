package nearby

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"callingcard/internal/pkg/logx"
)

// ErrManagerClosed is returned after Shutdown.
var ErrManagerClosed = errors.New("nearby manager is shut down")

// ErrVicinityUnavailable is returned when a vicinity keeps shutting down under a join.
var ErrVicinityUnavailable = errors.New("vicinity unavailable")

const joinAttempts = 2

// Manager creates vicinities on demand and removes them once their run loop exits.
type Manager struct {
	vicinities map[string]*Vicinity

	consent    ConsentChecker
	defaultTTL time.Duration

	// mu protects vicinities and closed.
	mu     sync.Mutex
	closed bool

	// cleanup is never closed; vicinities that outlive Shutdown may still send on it.
	cleanup chan CleanupMsg
	quit    chan struct{}
	wg      sync.WaitGroup

	logger zerolog.Logger
}

// NewManager starts a manager. consent may be nil to allow every account.
func NewManager(consent ConsentChecker, defaultTTL time.Duration) *Manager {
	m := &Manager{
		vicinities: make(map[string]*Vicinity),
		consent:    consent,
		defaultTTL: defaultTTL,
		cleanup:    make(chan CleanupMsg, 16),
		quit:       make(chan struct{}),
		logger:     logx.Component("NearbyManager"),
	}

	m.wg.Add(1)
	go m.runCleanupLoop()

	return m
}

func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	m.logger.Info().Msg("Cleanup loop started.")

	for {
		select {
		case msg := <-m.cleanup:
			m.deleteVicinity(msg.Vicinity)
		case <-m.quit:
			m.logger.Info().Msg("Cleanup loop stopped.")
			return
		}
	}
}

func (m *Manager) deleteVicinity(v *Vicinity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.vicinities[v.Code]; ok && current == v {
		delete(m.vicinities, v.Code)
		m.logger.Info().Str("vicinity", v.Code).Msg("Vicinity removed.")
	}
}

// Vicinity returns the live vicinity for code, starting a new one when needed.
func (m *Manager) Vicinity(code string) (*Vicinity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	if v, ok := m.vicinities[code]; ok && !v.Stopped() {
		return v, nil
	}

	v := NewVicinity(code, m.defaultTTL, m.cleanup)
	m.vicinities[code] = v

	go v.Run()

	m.logger.Info().Str("vicinity", code).Msg("New vicinity started.")
	return v, nil
}

// Connect registers a websocket connection for identity in the vicinity code.
// The caller runs the returned client's WritePump and ReadPump.
func (m *Manager) Connect(code string, conn *websocket.Conn, identity Identity) (*Client, error) {
	for i := 0; i < joinAttempts; i++ {
		v, err := m.Vicinity(code)
		if err != nil {
			return nil, err
		}

		client := NewClient(v, conn, identity, m.consent)
		if v.RegisterClient(client) {
			return client, nil
		}
	}

	return nil, ErrVicinityUnavailable
}

// Count returns the number of live vicinities.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vicinities)
}

// Shutdown stops every vicinity and the cleanup loop.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down nearby manager...")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true

	vicinities := make([]*Vicinity, 0, len(m.vicinities))
	for _, v := range m.vicinities {
		vicinities = append(vicinities, v)
	}
	m.mu.Unlock()

	for _, v := range vicinities {
		v.Stop()
		<-v.Done()
	}

	close(m.quit)
	m.wg.Wait()

	m.logger.Info().Msg("Nearby manager shutdown complete.")
}
