package authorize

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"parkgate/internal/domain/gate"
)

func testEngine(vehicles ...gate.Vehicle) *Engine {
	reg := NewRegistry(NewSnapshot(vehicles, time.Now()))
	return NewEngine(reg, zerolog.Nop())
}

func event(plate string) gate.RecognitionEvent {
	return gate.RecognitionEvent{ID: "ev-1", CameraID: "cam-1", Plate: plate, EventTime: time.Now()}
}

func TestUnknownPlateDenied(t *testing.T) {
	e := testEngine()
	d := e.Authorize(event("AB12CDE"))
	assert.False(t, d.Granted)
	assert.Equal(t, gate.ReasonUnknownPlate, d.Reason)
}

func TestRevokedVehicleDenied(t *testing.T) {
	e := testEngine(gate.Vehicle{Plate: "XYZ999", Authorized: false})
	d := e.Authorize(event("XYZ999"))
	assert.False(t, d.Granted)
	assert.Equal(t, gate.ReasonRevoked, d.Reason)
}

func TestExpiredValidityDenied(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	e := testEngine(gate.Vehicle{Plate: "AB12CDE", Authorized: true, ValidUntil: &past})
	d := e.Authorize(event("AB12CDE"))
	assert.False(t, d.Granted)
	assert.Equal(t, gate.ReasonExpired, d.Reason)
}

func TestNotYetValidDenied(t *testing.T) {
	future := time.Now().Add(time.Hour)
	e := testEngine(gate.Vehicle{Plate: "AB12CDE", Authorized: true, ValidFrom: &future})
	d := e.Authorize(event("AB12CDE"))
	assert.False(t, d.Granted)
	assert.Equal(t, gate.ReasonExpired, d.Reason)
}

func TestAuthorizedWithinWindowGranted(t *testing.T) {
	from := time.Now().Add(-time.Hour)
	until := time.Now().Add(time.Hour)
	e := testEngine(gate.Vehicle{Plate: "AB12CDE", Authorized: true, ValidFrom: &from, ValidUntil: &until})
	d := e.Authorize(event("AB12CDE"))
	assert.True(t, d.Granted)
	assert.Equal(t, gate.ReasonGranted, d.Reason)
}

func TestOpenEndedBoundsAreUnbounded(t *testing.T) {
	e := testEngine(gate.Vehicle{Plate: "AB12CDE", Authorized: true})
	d := e.Authorize(event("AB12CDE"))
	assert.True(t, d.Granted)
}

func TestSnapshotSwapIsObservedByNextDecision(t *testing.T) {
	reg := NewRegistry(NewSnapshot(nil, time.Now()))
	e := NewEngine(reg, zerolog.Nop())

	d := e.Authorize(event("AB12CDE"))
	assert.Equal(t, gate.ReasonUnknownPlate, d.Reason)

	reg.Swap(NewSnapshot([]gate.Vehicle{{Plate: "AB12CDE", Authorized: true}}, time.Now()))

	d = e.Authorize(event("AB12CDE"))
	assert.True(t, d.Granted)
}
