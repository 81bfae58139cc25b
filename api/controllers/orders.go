package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuseats/settlement-backend/api/middleware"
	"github.com/campuseats/settlement-backend/api/responses"
	"github.com/campuseats/settlement-backend/api/validators"
	"github.com/campuseats/settlement-backend/internal/orders"
	"github.com/campuseats/settlement-backend/pkg/db/models"
	"github.com/campuseats/settlement-backend/pkg/enums"
	pkgerrors "github.com/campuseats/settlement-backend/pkg/errors"
	"github.com/campuseats/settlement-backend/pkg/logger"
)

type createOrderItemRequest struct {
	MenuItemID string          `json:"menuItemId" validate:"required,uuid4"`
	Name       string          `json:"name" validate:"required"`
	Price      decimal.Decimal `json:"price" validate:"required"`
	Quantity   int             `json:"quantity" validate:"required,min=1"`
}

type createOrderRequest struct {
	VendorID   string                   `json:"vendorId" validate:"required,uuid4"`
	PickupTime time.Time                `json:"pickupTime" validate:"required"`
	Items      []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateOrderStatusRequest struct {
	NewStatus string `json:"newStatus" validate:"required"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderItemView struct {
	ID         uuid.UUID       `json:"id"`
	MenuItemID uuid.UUID       `json:"menuItemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type orderView struct {
	ID          uuid.UUID         `json:"id"`
	CustomerID  uuid.UUID         `json:"customerId"`
	VendorID    uuid.UUID         `json:"vendorId"`
	OrderNumber string            `json:"orderNumber"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	PickupTime  time.Time         `json:"pickupTime"`
	Items       []orderItemView   `json:"items"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func toOrderView(order *models.Order) orderView {
	view := orderView{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		VendorID:    order.VendorID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		PickupTime:  order.PickupTime,
		Items:       make([]orderItemView, 0, len(order.Items)),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, orderItemView{
			ID:         item.ID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Subtotal:   item.Subtotal,
		})
	}
	return view
}

func actorFromRequest(r *http.Request) (orders.Actor, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	return orders.Actor{UserID: userID, Role: role}, nil
}

// CreateOrder places a new pickup order for the authenticated customer.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendorID, err := uuid.Parse(body.VendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id"))
			return
		}

		input := orders.CreateOrderInput{
			CustomerID: actor.UserID,
			VendorID:   vendorID,
			PickupTime: body.PickupTime,
			Items:      make([]orders.CreateOrderItemInput, 0, len(body.Items)),
		}
		for _, item := range body.Items {
			menuItemID, err := uuid.Parse(item.MenuItemID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid menu item id"))
				return
			}
			input.Items = append(input.Items, orders.CreateOrderItemInput{
				MenuItemID: menuItemID,
				Name:       item.Name,
				Price:      item.Price,
				Quantity:   item.Quantity,
			})
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderView(order))
	}
}

// GetOrder returns one order with its items.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// UpdateOrderStatus moves an order along the fulfillment state machine on
// behalf of the authenticated actor.
func UpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		var body updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		next, err := enums.ParseOrderStatus(body.NewStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		if err := svc.UpdateStatus(r.Context(), orderID, next, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// CancelOrder cancels a pending order for the authenticated customer.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		var body cancelOrderRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		reason := validators.SanitizeString(body.Reason, 500)
		if err := svc.Cancel(r.Context(), orderID, actor, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}
