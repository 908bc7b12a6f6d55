package parking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeStatus is the terminal-or-pending outcome reported by a payment
// gateway.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeCompleted ChargeStatus = "completed"
	ChargeFailed    ChargeStatus = "failed"
)

// PaymentGateway is the card-terminal integration contract. Charge may
// return ChargePending; settlement is then the gateway's concern and is
// reconciled out of band.
type PaymentGateway interface {
	Charge(ctx context.Context, sessionID int64, amount decimal.Decimal) (ChargeStatus, error)
}

// HTTPGateway posts charge requests to a payment terminal endpoint.
type HTTPGateway struct {
	url    string
	client *http.Client
}

func NewHTTPGateway(url string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	SessionID int64  `json:"session_id"`
	Amount    string `json:"amount"`
}

type chargeResponse struct {
	Status ChargeStatus `json:"status"`
}

func (g *HTTPGateway) Charge(ctx context.Context, sessionID int64, amount decimal.Decimal) (ChargeStatus, error) {
	body, err := json.Marshal(chargeRequest{SessionID: sessionID, Amount: amount.StringFixed(2)})
	if err != nil {
		return ChargeFailed, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return ChargeFailed, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return ChargeFailed, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return ChargeFailed, fmt.Errorf("payment terminal returned %d", resp.StatusCode)
	}

	var cr chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return ChargeFailed, err
	}
	return cr.Status, nil
}

// NoopGateway accepts every charge immediately. Used when no terminal is
// configured (billing handled at a manned booth).
type NoopGateway struct{}

func (NoopGateway) Charge(context.Context, int64, decimal.Decimal) (ChargeStatus, error) {
	return ChargeCompleted, nil
}
