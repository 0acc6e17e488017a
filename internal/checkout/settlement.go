package checkout

import (
	"github.com/oakline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
)

// Settlement describes when an order's stock is reserved and whether the
// gateway must authorize before capture. The set is closed: an unknown
// payment method is a validation error, never a silent default.
type Settlement struct {
	Name                  string
	ReserveAtPlacement    bool
	RequiresAuthorization bool
}

var (
	settlementImmediate = Settlement{Name: "immediate", ReserveAtPlacement: true}
	settlementDeferred  = Settlement{Name: "deferred", RequiresAuthorization: true}
)

func settlementFor(method enums.PaymentMethod) (Settlement, error) {
	switch method {
	case enums.PaymentMethodCOD:
		return settlementImmediate, nil
	case enums.PaymentMethodGateway:
		return settlementDeferred, nil
	default:
		return Settlement{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
}
