package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campuseats/settlement-backend/api/responses"
	"github.com/campuseats/settlement-backend/api/validators"
	"github.com/campuseats/settlement-backend/internal/payments"
	"github.com/campuseats/settlement-backend/pkg/enums"
	pkgerrors "github.com/campuseats/settlement-backend/pkg/errors"
	"github.com/campuseats/settlement-backend/pkg/logger"
	"github.com/campuseats/settlement-backend/pkg/types"
)

type initiatePaymentRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid4"`
	Method  string `json:"method" validate:"required"`
}

type verifyPaymentRequest struct {
	TransactionID   string         `json:"transactionId" validate:"required"`
	Status          string         `json:"status" validate:"required"`
	GatewayResponse map[string]any `json:"gatewayResponse"`
	ErrorDetails    *string        `json:"errorDetails"`
}

// InitiatePayment starts settlement for an order.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(body.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		outcome, err := svc.Initiate(r.Context(), payments.InitiateInput{
			OrderID: orderID,
			Method:  enums.PaymentMethod(body.Method),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, outcome)
	}
}

// RetryPayment re-runs settlement for a failed payment record.
func RetryPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		outcome, err := svc.Retry(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

// GetPayment returns one payment record by id.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		outcome, err := svc.GetByID(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

// VerifyPayment handles the gateway-side verification callback. Replays of the
// same outcome are acknowledged without re-applying anything.
func VerifyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.HandleVerification(r.Context(), payments.VerificationInput{
			TransactionID:   body.TransactionID,
			Status:          enums.PaymentStatus(body.Status),
			GatewayResponse: types.JSONMap(body.GatewayResponse),
			ErrorDetails:    body.ErrorDetails,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "acknowledged"})
	}
}
