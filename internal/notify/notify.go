package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"parkgate/internal/domain/gate"
)

// EventType classifies outbound notifications.
type EventType string

const (
	EventAccessGranted    EventType = "access_granted"
	EventAccessDenied     EventType = "access_denied"
	EventSessionCompleted EventType = "session_completed"
	EventBarrierFault     EventType = "barrier_fault"
)

// Payload is the structured event handed to the notification collaborator.
// Delivery, retries and credentials are its concern, not ours.
type Payload struct {
	Type      EventType            `json:"type"`
	Plate     string               `json:"plate,omitempty"`
	CameraID  string               `json:"camera_id,omitempty"`
	BarrierID string               `json:"barrier_id,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Fee       string               `json:"fee,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Decision  *gate.AccessDecision `json:"decision,omitempty"`
	Session   *gate.ParkingSession `json:"session,omitempty"`
}

// Dispatcher posts payloads to a webhook endpoint. Failures are logged and
// never propagate into the decision path.
type Dispatcher struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewDispatcher returns nil when no webhook is configured; callers treat a
// nil dispatcher as disabled.
func NewDispatcher(url string, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if url == "" {
		return nil
	}
	return &Dispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "notify").Logger(),
	}
}

// Dispatch sends the payload in the background.
func (d *Dispatcher) Dispatch(payload Payload) {
	if d == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
		defer cancel()
		if err := d.send(ctx, payload); err != nil {
			d.log.Error().Err(err).Str("type", string(payload.Type)).Msg("notification dispatch failed")
		}
	}()
}

// NotifyDecision publishes an access decision as granted or denied.
func (d *Dispatcher) NotifyDecision(decision gate.AccessDecision) {
	if d == nil {
		return
	}
	typ := EventAccessDenied
	if decision.Granted {
		typ = EventAccessGranted
	}
	d.Dispatch(Payload{
		Type:      typ,
		Plate:     decision.Event.Plate,
		CameraID:  decision.Event.CameraID,
		Reason:    string(decision.Reason),
		Timestamp: decision.DecidedAt,
		Decision:  &decision,
	})
}

// NotifySessionCompleted publishes a closed parking session with its fee.
func (d *Dispatcher) NotifySessionCompleted(session *gate.ParkingSession) {
	if d == nil || session == nil {
		return
	}
	payload := Payload{
		Type:      EventSessionCompleted,
		Plate:     session.Plate,
		Fee:       session.Fee.StringFixed(2),
		Timestamp: time.Now(),
		Session:   session,
	}
	if session.ExitTime != nil {
		payload.Timestamp = *session.ExitTime
	}
	d.Dispatch(payload)
}

// NotifyBarrierFault publishes a latched barrier fault for operator alerting.
func (d *Dispatcher) NotifyBarrierFault(barrierID, detail string) {
	if d == nil {
		return
	}
	d.Dispatch(Payload{
		Type:      EventBarrierFault,
		BarrierID: barrierID,
		Reason:    detail,
		Timestamp: time.Now(),
	})
}

func (d *Dispatcher) send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
