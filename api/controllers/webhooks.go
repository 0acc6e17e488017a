package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/oakline/marketplace-backend/api/responses"
	"github.com/oakline/marketplace-backend/internal/payments"
	paymentwebhook "github.com/oakline/marketplace-backend/internal/webhooks/payment"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/logger"
)

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

// PaymentWebhook handles capture confirmations from the payment gateway.
// Redeliveries are expected; the guard plus the reconciler's own pre-check
// make them no-ops.
func PaymentWebhook(svc payments.Service, secrets signingSecretSource, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		if secrets == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		event, err := paymentwebhook.ConstructEvent(payload, r.Header.Get(paymentwebhook.SignatureHeader), secrets.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if event.Type != paymentwebhook.EventTypeCaptured {
			responses.WriteSuccess(w, nil)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		outcome, err := svc.Capture(ctx, payments.CaptureInput{
			OrderID:    event.OrderID,
			GatewayRef: event.GatewayRef,
		})
		if err != nil {
			_ = guard.Delete(ctx, event.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("payment event %s processed", event.EventID))
		}
		responses.WriteSuccess(w, outcome)
	}
}
