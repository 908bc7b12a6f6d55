package barrier

import (
	"fmt"
	"sync"
	"time"
)

// HardwareEventKind classifies signals from the barrier driver.
type HardwareEventKind string

const (
	// SensorOpened confirms the gate reached its open position.
	SensorOpened HardwareEventKind = "sensor_opened"
	// SensorClosed confirms the gate reached its closed position.
	SensorClosed HardwareEventKind = "sensor_closed"
	// FaultSignal reports an obstruction or driver error.
	FaultSignal HardwareEventKind = "fault"
)

// HardwareEvent is one signal from the physical driver.
type HardwareEvent struct {
	Kind   HardwareEventKind
	Detail string
}

// Hardware is the driver contract for one physical barrier. Commands are
// assumed idempotent; confirmations arrive on Events as best effort.
type Hardware interface {
	Open() error
	Close() error
	Events() <-chan HardwareEvent
}

// NewHardware builds a driver by name. Real GPIO drivers register here; the
// mock driver confirms every command after a fixed delay and is used for
// bench setups without gate hardware.
func NewHardware(driver string, confirmDelay time.Duration) (Hardware, error) {
	switch driver {
	case "mock":
		return NewMockHardware(confirmDelay), nil
	default:
		return nil, fmt.Errorf("unknown barrier driver %q", driver)
	}
}

// MockHardware simulates a gate that always confirms after a delay.
type MockHardware struct {
	mu     sync.Mutex
	delay  time.Duration
	events chan HardwareEvent

	OpenCount  int
	CloseCount int
}

func NewMockHardware(delay time.Duration) *MockHardware {
	return &MockHardware{
		delay:  delay,
		events: make(chan HardwareEvent, 8),
	}
}

func (m *MockHardware) Open() error {
	m.mu.Lock()
	m.OpenCount++
	m.mu.Unlock()
	m.confirmAfter(SensorOpened)
	return nil
}

func (m *MockHardware) Close() error {
	m.mu.Lock()
	m.CloseCount++
	m.mu.Unlock()
	m.confirmAfter(SensorClosed)
	return nil
}

func (m *MockHardware) Events() <-chan HardwareEvent {
	return m.events
}

// Fault injects a fault signal, for tests and bench rigs.
func (m *MockHardware) Fault(detail string) {
	m.events <- HardwareEvent{Kind: FaultSignal, Detail: detail}
}

func (m *MockHardware) confirmAfter(kind HardwareEventKind) {
	time.AfterFunc(m.delay, func() {
		select {
		case m.events <- HardwareEvent{Kind: kind}:
		default:
		}
	})
}
