package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuseats/settlement-backend/pkg/enums"
	pkgerrors "github.com/campuseats/settlement-backend/pkg/errors"
)

var allStatuses = []enums.OrderStatus{
	enums.OrderStatusPendingPayment,
	enums.OrderStatusPaid,
	enums.OrderStatusPreparing,
	enums.OrderStatusReady,
	enums.OrderStatusCompleted,
	enums.OrderStatusCancelled,
}

// Every ordered status pair is checked; only the five table edges may pass
// for any role at all.
func TestTransitionTableIsClosed(t *testing.T) {
	legal := map[transition]bool{
		{enums.OrderStatusPendingPayment, enums.OrderStatusPaid}:      true,
		{enums.OrderStatusPaid, enums.OrderStatusPreparing}:           true,
		{enums.OrderStatusPreparing, enums.OrderStatusReady}:          true,
		{enums.OrderStatusReady, enums.OrderStatusCompleted}:          true,
		{enums.OrderStatusPendingPayment, enums.OrderStatusCancelled}: true,
	}

	roles := []enums.ActorRole{
		enums.ActorRoleCustomer,
		enums.ActorRoleVendor,
		enums.ActorRoleAdmin,
		enums.ActorRoleSystem,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			if from == to {
				continue
			}
			edge := transition{from: from, to: to}
			anyRolePasses := false
			for _, role := range roles {
				if ValidateTransition(from, to, role) == nil {
					anyRolePasses = true
				}
			}
			assert.Equal(t, legal[edge], anyRolePasses, "edge %s to %s", from, to)
		}
	}
}

func TestTransitionRoleGuards(t *testing.T) {
	cases := []struct {
		name string
		from enums.OrderStatus
		to   enums.OrderStatus
		role enums.ActorRole
		code pkgerrors.Code
	}{
		{"payment edge is system only", enums.OrderStatusPendingPayment, enums.OrderStatusPaid, enums.ActorRoleVendor, pkgerrors.CodeForbidden},
		{"payment edge rejects customer", enums.OrderStatusPendingPayment, enums.OrderStatusPaid, enums.ActorRoleCustomer, pkgerrors.CodeForbidden},
		{"cancel edge is customer only", enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, enums.ActorRoleVendor, pkgerrors.CodeForbidden},
		{"kitchen edge rejects customer", enums.OrderStatusPreparing, enums.OrderStatusReady, enums.ActorRoleCustomer, pkgerrors.CodeForbidden},
		{"kitchen edge rejects admin", enums.OrderStatusReady, enums.OrderStatusCompleted, enums.ActorRoleAdmin, pkgerrors.CodeForbidden},
		{"illegal edge is validation", enums.OrderStatusPaid, enums.OrderStatusCompleted, enums.ActorRoleVendor, pkgerrors.CodeValidation},
		{"cancel after payment is validation", enums.OrderStatusPaid, enums.OrderStatusCancelled, enums.ActorRoleCustomer, pkgerrors.CodeValidation},
		{"no resurrecting cancelled orders", enums.OrderStatusCancelled, enums.OrderStatusPendingPayment, enums.ActorRoleAdmin, pkgerrors.CodeValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTransition(tc.from, tc.to, tc.role)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, tc.code, typed.Code())
		})
	}
}

func TestTransitionHappyPath(t *testing.T) {
	require.NoError(t, ValidateTransition(enums.OrderStatusPendingPayment, enums.OrderStatusPaid, enums.ActorRoleSystem))
	require.NoError(t, ValidateTransition(enums.OrderStatusPaid, enums.OrderStatusPreparing, enums.ActorRoleVendor))
	require.NoError(t, ValidateTransition(enums.OrderStatusPaid, enums.OrderStatusPreparing, enums.ActorRoleSystem))
	require.NoError(t, ValidateTransition(enums.OrderStatusPreparing, enums.OrderStatusReady, enums.ActorRoleVendor))
	require.NoError(t, ValidateTransition(enums.OrderStatusReady, enums.OrderStatusCompleted, enums.ActorRoleVendor))
	require.NoError(t, ValidateTransition(enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, enums.ActorRoleCustomer))
}

func TestTransitionUnknownStatus(t *testing.T) {
	err := ValidateTransition("shipped", enums.OrderStatusPaid, enums.ActorRoleSystem)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
