package payments

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/campuseats/settlement-backend/pkg/config"
	"github.com/campuseats/settlement-backend/pkg/gateway"
	"github.com/campuseats/settlement-backend/pkg/logger"
	"github.com/campuseats/settlement-backend/pkg/types"
)

// Clock abstracts time for the orchestrator so backoff is deterministic in
// tests. Sleep must honor context cancellation.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewRealClock returns the wall clock used outside tests.
func NewRealClock() Clock { return realClock{} }

// Charger performs a single charge call against one gateway slot.
type Charger interface {
	Charge(ctx context.Context, gw config.GatewaySlot, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
}

// OrchestratorConfig tunes the retry/failover loop.
type OrchestratorConfig struct {
	Gateways   []config.GatewaySlot
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

// OrchestrationResult is the outcome of a full settlement run. Ordinary
// gateway failures are data, not errors.
type OrchestrationResult struct {
	Success  bool
	Gateway  string
	Data     types.JSONMap
	Attempts int
	Trail    types.PaymentErrorTrail
}

// Err collapses the trail into one error for logging. Nil on success or an
// empty trail.
func (r OrchestrationResult) Err() error {
	var combined error
	for _, entry := range r.Trail {
		combined = multierr.Append(combined, errors.New(entry.Error))
	}
	return combined
}

// Orchestrator drives charges through the configured gateways: each gateway
// gets MaxRetries attempts with exponential backoff, then the loop fails over
// to the next slot with the attempt counter and backoff reset.
type Orchestrator struct {
	charger Charger
	clock   Clock
	cfg     OrchestratorConfig
	logg    *logger.Logger
}

// NewOrchestrator wires an orchestrator. A nil clock falls back to wall time.
func NewOrchestrator(charger Charger, clock Clock, cfg OrchestratorConfig, logg *logger.Logger) (*Orchestrator, error) {
	if charger == nil {
		return nil, errors.New("charger is required")
	}
	if len(cfg.Gateways) == 0 {
		return nil, errors.New("at least one gateway is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Orchestrator{charger: charger, clock: clock, cfg: cfg, logg: logg}, nil
}

// Run executes the settlement loop for one charge request. The transaction id
// inside req is never regenerated; every attempt carries the same one. The
// returned error is non-nil only when the context is canceled mid-run.
func (o *Orchestrator) Run(ctx context.Context, req gateway.ChargeRequest) (OrchestrationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := OrchestrationResult{}
	for _, gw := range o.cfg.Gateways {
		delay := o.cfg.BaseDelay
		for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			result.Attempts++
			charge, err := o.charger.Charge(ctx, gw, req)
			if err == nil {
				result.Success = true
				result.Gateway = gw.Name
				if charge != nil {
					result.Data = charge.Data
				}
				return result, nil
			}

			result.Trail = append(result.Trail, types.PaymentAttemptError{
				Gateway:   gw.Name,
				Attempt:   attempt,
				Error:     err.Error(),
				Timestamp: o.clock.Now(),
			})
			if o.logg != nil {
				logCtx := o.logg.WithGateway(ctx, gw.Name)
				logCtx = o.logg.WithTransactionID(logCtx, req.TransactionID)
				logCtx = o.logg.WithField(logCtx, "attempt", attempt)
				o.logg.Warn(logCtx, "gateway charge attempt failed")
			}

			if attempt < o.cfg.MaxRetries {
				if err := o.clock.Sleep(ctx, delay); err != nil {
					return result, err
				}
				delay = time.Duration(float64(delay) * o.cfg.Multiplier)
			}
		}
	}

	return result, nil
}
