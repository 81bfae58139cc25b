package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/campuseats/settlement-backend/pkg/config"
	"github.com/campuseats/settlement-backend/pkg/enums"
	"github.com/campuseats/settlement-backend/pkg/logger"
	"github.com/campuseats/settlement-backend/pkg/types"
)

// ChargeRequest is the payload posted to a payment gateway.
type ChargeRequest struct {
	TransactionID string              `json:"transactionId"`
	OrderID       string              `json:"orderId"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Method        enums.PaymentMethod `json:"method"`
}

// ChargeResult carries the raw gateway payload for a successful charge.
type ChargeResult struct {
	Data types.JSONMap
}

type chargeResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	Error  string         `json:"error"`
}

// Client performs single charge calls against configured gateways. Retries
// and failover live above this layer.
type Client struct {
	http *resty.Client
	logg *logger.Logger
}

// NewClient builds a gateway client. The per-call timeout comes from the
// gateway slot, not from the shared resty client.
func NewClient(logg *logger.Logger) *Client {
	return &Client{
		http: resty.New(),
		logg: logg,
	}
}

// Charge posts one charge request to the gateway endpoint. The call is bounded
// by the slot timeout and by ctx. A timed-out call returns an error whose text
// names the timeout so the classifier can map it.
func (c *Client) Charge(ctx context.Context, gw config.GatewaySlot, req ChargeRequest) (*ChargeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx := ctx
	if gw.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, gw.Timeout)
		defer cancel()
	}

	var parsed chargeResponse
	resp, err := c.http.R().
		SetContext(callCtx).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", gw.Credential)).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&parsed).
		SetError(&parsed).
		Post(gw.Endpoint)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("gateway %s timeout after %s", gw.Name, gw.Timeout)
		}
		return nil, fmt.Errorf("gateway %s network error: %w", gw.Name, err)
	}

	if resp.IsError() {
		message := strings.TrimSpace(parsed.Error)
		if message == "" {
			message = strings.TrimSpace(resp.String())
		}
		if message == "" {
			message = fmt.Sprintf("gateway %s returned status %d", gw.Name, resp.StatusCode())
		}
		return nil, errors.New(message)
	}

	if c.logg != nil {
		logCtx := c.logg.WithGateway(ctx, gw.Name)
		logCtx = c.logg.WithTransactionID(logCtx, req.TransactionID)
		c.logg.Info(logCtx, "gateway charge accepted")
	}

	return &ChargeResult{Data: types.JSONMap(parsed.Data)}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
