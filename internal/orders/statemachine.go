package orders

import (
	"fmt"

	"github.com/campuseats/settlement-backend/pkg/enums"
	pkgerrors "github.com/campuseats/settlement-backend/pkg/errors"
)

type transition struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

// allowedRoles is the complete fulfillment transition table. An absent pair
// is an illegal transition regardless of actor. The payment edge belongs to
// the system; cancellation to the customer; kitchen progress to the vendor.
// The system may also take paid to preparing when auto-prepare is on.
var allowedRoles = map[transition][]enums.ActorRole{
	{enums.OrderStatusPendingPayment, enums.OrderStatusPaid}:      {enums.ActorRoleSystem},
	{enums.OrderStatusPaid, enums.OrderStatusPreparing}:           {enums.ActorRoleVendor, enums.ActorRoleSystem},
	{enums.OrderStatusPreparing, enums.OrderStatusReady}:          {enums.ActorRoleVendor},
	{enums.OrderStatusReady, enums.OrderStatusCompleted}:          {enums.ActorRoleVendor},
	{enums.OrderStatusPendingPayment, enums.OrderStatusCancelled}: {enums.ActorRoleCustomer},
}

// ValidateTransition checks both the edge and the actor role. It returns a
// validation error for an illegal edge and a forbidden error when the edge
// exists but the actor may not take it.
func ValidateTransition(from, to enums.OrderStatus, role enums.ActorRole) error {
	if !from.IsValid() || !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown order status in transition from %q to %q", from, to))
	}
	roles, ok := allowedRoles[transition{from: from, to: to}]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("cannot transition order from %s to %s", from, to))
	}
	for _, allowed := range roles {
		if allowed == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden,
		fmt.Sprintf("role %s may not transition order from %s to %s", role, from, to))
}
