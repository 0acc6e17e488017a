package controllers

import (
	"net/http"

	"github.com/oakline/marketplace-backend/api/middleware"
	"github.com/oakline/marketplace-backend/api/responses"
	"github.com/oakline/marketplace-backend/api/validators"
	"github.com/oakline/marketplace-backend/internal/vouchers"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/logger"
)

// ValidateVoucher previews a voucher against the buyer's current cart. The
// result is advisory; checkout re-validates inside its own transaction.
func ValidateVoucher(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		buyerID, err := middleware.UserIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload vouchers.ValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Preview(r.Context(), buyerID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !result.Applicable {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeVoucher, "voucher not applicable").
					WithDetails(map[string]string{"reason": result.Reason}))
			return
		}

		responses.WriteSuccess(w, result)
	}
}
