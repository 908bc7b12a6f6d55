package parking

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"parkgate/internal/domain/gate"
	"parkgate/internal/pricing"
)

var (
	// ErrAnomalousExit marks an exit event with no matching active
	// session. The event is discarded; no session is created backward.
	ErrAnomalousExit = errors.New("exit without active session")
)

// SessionStore persists parking sessions. Implemented by the repository; an
// in-memory fake serves the tests.
type SessionStore interface {
	ActiveSession(ctx context.Context, plate string) (*gate.ParkingSession, error)
	CreateSession(ctx context.Context, s *gate.ParkingSession) error
	CompleteSession(ctx context.Context, s *gate.ParkingSession) error
}

// lockStripes bounds the lock table: memory stays constant no matter how
// many distinct plates pass through.
const lockStripes = 64

// Manager pairs entry and exit events per plate and bills completed
// sessions. Updates for one plate are serialized through a striped lock
// keyed by plate hash; distinct plates proceed independently except for
// rare stripe collisions.
type Manager struct {
	store   SessionStore
	gateway PaymentGateway
	pricing pricing.Config
	log     zerolog.Logger
	now     func() time.Time

	locks [lockStripes]sync.Mutex

	anomalousExits atomic.Int64
}

func NewManager(store SessionStore, gateway PaymentGateway, cfg pricing.Config, log zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		gateway: gateway,
		pricing: cfg,
		log:     log.With().Str("component", "parking").Logger(),
		now:     time.Now,
	}
}

func (m *Manager) lockFor(plate string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(plate))
	return &m.locks[h.Sum32()%lockStripes]
}

// AnomalousExits reports how many exit events arrived without an active
// session.
func (m *Manager) AnomalousExits() int64 {
	return m.anomalousExits.Load()
}

// HandleEntry opens a session for an authorized entry. A plate that already
// has an active session is a duplicate entry and is ignored.
func (m *Manager) HandleEntry(ctx context.Context, plate string, at time.Time) (*gate.ParkingSession, error) {
	l := m.lockFor(plate)
	l.Lock()
	defer l.Unlock()

	active, err := m.store.ActiveSession(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("lookup active session: %w", err)
	}
	if active != nil {
		m.log.Debug().
			Str("plate", plate).
			Int64("session_id", active.ID).
			Msg("duplicate entry ignored, session already active")
		return active, nil
	}

	session := &gate.ParkingSession{
		Plate:         plate,
		EntryTime:     at,
		Fee:           decimal.Zero,
		PaymentStatus: gate.PaymentUnpaid,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.log.Info().
		Str("plate", plate).
		Int64("session_id", session.ID).
		Time("entry_time", at).
		Msg("parking session opened")
	return session, nil
}

// HandleExit completes the plate's active session, computes the fee and
// settles it. An exit with no active session returns ErrAnomalousExit and
// creates nothing.
func (m *Manager) HandleExit(ctx context.Context, plate string, at time.Time) (*gate.ParkingSession, error) {
	l := m.lockFor(plate)
	l.Lock()
	defer l.Unlock()

	session, err := m.store.ActiveSession(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("lookup active session: %w", err)
	}
	if session == nil {
		m.anomalousExits.Add(1)
		m.log.Warn().Str("plate", plate).Time("exit_time", at).Msg("exit event without active session")
		return nil, ErrAnomalousExit
	}

	exit := at
	session.ExitTime = &exit
	session.Duration = exit.Sub(session.EntryTime)
	session.Fee = pricing.Calculate(session.Duration, session.EntryTime, m.pricing)

	if session.Duration.Minutes() <= float64(m.pricing.FreePeriodMinutes) {
		// Within the free period: waived outright, the payment gateway
		// is never contacted.
		session.Fee = decimal.Zero
		session.PaymentStatus = gate.PaymentWaived
	} else {
		session.PaymentStatus = m.settle(ctx, session)
	}

	if err := m.store.CompleteSession(ctx, session); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	m.log.Info().
		Str("plate", plate).
		Int64("session_id", session.ID).
		Dur("duration", session.Duration).
		Str("fee", session.Fee.StringFixed(2)).
		Str("payment_status", string(session.PaymentStatus)).
		Msg("parking session completed")
	return session, nil
}

// settle charges the fee through the gateway. A gateway failure or a pending
// charge leaves the session unpaid; it never blocks the exit.
func (m *Manager) settle(ctx context.Context, session *gate.ParkingSession) gate.PaymentStatus {
	if session.Fee.IsZero() {
		return gate.PaymentWaived
	}

	status, err := m.gateway.Charge(ctx, session.ID, session.Fee)
	if err != nil {
		m.log.Error().Err(err).Int64("session_id", session.ID).Msg("payment charge failed")
		return gate.PaymentUnpaid
	}
	if status == ChargeCompleted {
		return gate.PaymentPaid
	}
	return gate.PaymentUnpaid
}
