package controllers

import (
	"net/http"

	"github.com/oakline/marketplace-backend/api/middleware"
	"github.com/oakline/marketplace-backend/api/responses"
	"github.com/oakline/marketplace-backend/api/validators"
	checkoutsvc "github.com/oakline/marketplace-backend/internal/checkout"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/logger"
)

// Checkout places an order from the buyer's current cart.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, err := middleware.UserIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutsvc.PlaceOrderInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceOrder(r.Context(), buyerID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
