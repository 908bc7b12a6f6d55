package gate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method identifies which recognition path produced a candidate.
type Method string

const (
	MethodClassical   Method = "classical"
	MethodNeural      Method = "neural"
	MethodAccelerated Method = "accelerated"
)

// Frame is a single captured image from one camera. The buffer is owned by
// exactly one recognizer invocation and must not be retained after it.
type Frame struct {
	CameraID string    `json:"camera_id"`
	Capture  time.Time `json:"capture"`
	Image    []byte    `json:"-"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
}

// BoundingBox locates a detected plate within its source frame.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PlateCandidate is a single per-frame recognition result. Immutable once
// created.
type PlateCandidate struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
	CameraID   string      `json:"camera_id"`
	FrameTime  time.Time   `json:"frame_time"`
	Method     Method      `json:"method"`
}

// RecognitionEvent is the aggregator's voted output for one physical vehicle
// pass. Never mutated after emission.
type RecognitionEvent struct {
	ID         string           `json:"id"`
	CameraID   string           `json:"camera_id"`
	Plate      string           `json:"plate"`
	RawPlate   string           `json:"raw_plate"`
	Confidence float64          `json:"confidence"`
	EventTime  time.Time        `json:"event_time"`
	Candidates []PlateCandidate `json:"candidates,omitempty"`
}

// Vehicle is one registry entry, keyed by normalized plate. Consulted as a
// read-only snapshot by the authorization engine.
type Vehicle struct {
	Plate       string     `json:"plate"`
	Description string     `json:"description,omitempty"`
	Authorized  bool       `json:"authorized"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	AccessLevel string     `json:"access_level,omitempty"`
}

// DecisionReason explains a grant or deny.
type DecisionReason string

const (
	ReasonGranted      DecisionReason = "granted"
	ReasonUnknownPlate DecisionReason = "unknown_plate"
	ReasonExpired      DecisionReason = "expired"
	ReasonRevoked      DecisionReason = "revoked"
)

// AccessDecision is the terminal outcome of authorizing one recognition
// event. Logged, never mutated.
type AccessDecision struct {
	Event     RecognitionEvent `json:"event"`
	Granted   bool             `json:"granted"`
	Reason    DecisionReason   `json:"reason"`
	DecidedAt time.Time        `json:"decided_at"`
}

// BarrierState is the live state of one physical barrier.
type BarrierState string

const (
	BarrierClosed  BarrierState = "closed"
	BarrierOpening BarrierState = "opening"
	BarrierOpen    BarrierState = "open"
	BarrierClosing BarrierState = "closing"
	BarrierFault   BarrierState = "fault"
)

// Direction tags a camera as watching the entry or exit lane.
type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

// PaymentStatus is the billing state of a parking session.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentWaived PaymentStatus = "waived"
)

// ParkingSession pairs one entry with one exit for a plate. ExitTime is nil
// while the session is active; the record becomes immutable once
// PaymentStatus reaches a terminal value.
type ParkingSession struct {
	ID            int64           `json:"id"`
	Plate         string          `json:"plate"`
	EntryTime     time.Time       `json:"entry_time"`
	ExitTime      *time.Time      `json:"exit_time,omitempty"`
	Duration      time.Duration   `json:"duration"`
	Fee           decimal.Decimal `json:"fee"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

// Active reports whether the session is still waiting for its exit event.
func (s *ParkingSession) Active() bool {
	return s.ExitTime == nil
}
