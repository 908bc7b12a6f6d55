package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkgate/internal/domain/gate"
	"parkgate/internal/repository"
)

const testSecret = "test-secret"

type fakeDirectory struct {
	events    []repository.RecognitionEvent
	decisions []repository.AccessDecision
	sessions  []gate.ParkingSession
	waived    []int64
	waiveErr  error
}

func (f *fakeDirectory) FindEvents(_ context.Context, _ *string, _, _ *time.Time, _, _ int) ([]repository.RecognitionEvent, error) {
	return f.events, nil
}

func (f *fakeDirectory) FindDecisions(_ context.Context, _ *string, _, _ int) ([]repository.AccessDecision, error) {
	return f.decisions, nil
}

func (f *fakeDirectory) FindSessions(_ context.Context, _ *string, _ bool, _, _ int) ([]gate.ParkingSession, error) {
	return f.sessions, nil
}

func (f *fakeDirectory) WaiveSession(_ context.Context, id int64) error {
	if f.waiveErr != nil {
		return f.waiveErr
	}
	f.waived = append(f.waived, id)
	return nil
}

type fakeBarrier struct {
	id     string
	state  gate.BarrierState
	grants int
	resets int
}

func (b *fakeBarrier) ID() string               { return b.id }
func (b *fakeBarrier) State() gate.BarrierState { return b.state }
func (b *fakeBarrier) Grant()                   { b.grants++ }
func (b *fakeBarrier) Reset()                   { b.resets++ }

func newTestRouter(t *testing.T, dir *fakeDirectory, barriers map[string]BarrierControl, reload ReloadFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(dir, barriers, reload, zerolog.Nop())
	h.Register(r, JWTAuth(testSecret))
	return r
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Subject: "operator",
		Role:    "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListEvents(t *testing.T) {
	dir := &fakeDirectory{
		events: []repository.RecognitionEvent{
			{ID: "ev-1", CameraID: "entry-cam", Plate: "AB12CDE", Confidence: 0.91},
		},
	}
	r := newTestRouter(t, dir, nil, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/events?plate=AB12CDE", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []repository.RecognitionEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "AB12CDE", body.Data[0].Plate)
}

func TestListEventsRejectsBadTimestamp(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{}, nil, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/events?from=yesterday", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListBarriers(t *testing.T) {
	barriers := map[string]BarrierControl{
		"entry-gate": &fakeBarrier{id: "entry-gate", state: gate.BarrierClosed},
		"exit-gate":  &fakeBarrier{id: "exit-gate", state: gate.BarrierFault},
	}
	r := newTestRouter(t, &fakeDirectory{}, barriers, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/barriers", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
}

func TestAdminRequiresToken(t *testing.T) {
	barriers := map[string]BarrierControl{
		"entry-gate": &fakeBarrier{id: "entry-gate", state: gate.BarrierClosed},
	}
	r := newTestRouter(t, &fakeDirectory{}, barriers, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/barriers/entry-gate/open", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/admin/barriers/entry-gate/open", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOpenBarrier(t *testing.T) {
	b := &fakeBarrier{id: "entry-gate", state: gate.BarrierClosed}
	r := newTestRouter(t, &fakeDirectory{}, map[string]BarrierControl{"entry-gate": b}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/barriers/entry-gate/open", adminToken(t))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, b.grants)
}

func TestOpenFaultedBarrierConflicts(t *testing.T) {
	b := &fakeBarrier{id: "entry-gate", state: gate.BarrierFault}
	r := newTestRouter(t, &fakeDirectory{}, map[string]BarrierControl{"entry-gate": b}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/barriers/entry-gate/open", adminToken(t))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, b.grants)
}

func TestResetBarrier(t *testing.T) {
	b := &fakeBarrier{id: "entry-gate", state: gate.BarrierFault}
	r := newTestRouter(t, &fakeDirectory{}, map[string]BarrierControl{"entry-gate": b}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/barriers/entry-gate/reset", adminToken(t))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, b.resets)
}

func TestUnknownBarrier(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{}, map[string]BarrierControl{}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/barriers/nope/open", adminToken(t))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReloadRegistry(t *testing.T) {
	reload := func(context.Context) (int, error) { return 42, nil }
	r := newTestRouter(t, &fakeDirectory{}, nil, reload)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/registry/reload", adminToken(t))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 42, body["vehicles"])
}

func TestWaiveSession(t *testing.T) {
	dir := &fakeDirectory{}
	r := newTestRouter(t, dir, nil, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/sessions/7/waive", adminToken(t))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{7}, dir.waived)
}

func TestWaiveUnknownSession(t *testing.T) {
	dir := &fakeDirectory{waiveErr: repository.ErrNotFound}
	r := newTestRouter(t, dir, nil, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/sessions/999/waive", adminToken(t))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWaiveRejectsBadID(t *testing.T) {
	r := newTestRouter(t, &fakeDirectory{}, nil, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/admin/sessions/abc/waive", adminToken(t))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
