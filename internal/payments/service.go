package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/internal/cart"
	"github.com/oakline/marketplace-backend/internal/checkout/reservation"
	"github.com/oakline/marketplace-backend/internal/orders"
	"github.com/oakline/marketplace-backend/internal/vouchers"
	pkgdb "github.com/oakline/marketplace-backend/pkg/db"
	"github.com/oakline/marketplace-backend/pkg/db/models"
	"github.com/oakline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/gateway"
	"github.com/oakline/marketplace-backend/pkg/logger"
	"github.com/oakline/marketplace-backend/pkg/metrics"
	"github.com/oakline/marketplace-backend/pkg/outbox"
	"github.com/shopspring/decimal"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type capturer interface {
	Capture(ctx context.Context, gatewayRef string) (*gateway.CaptureResult, error)
}

type reservationRunner interface {
	Reserve(ctx context.Context, tx *gorm.DB, demands []reservation.Demand) error
}

type outboxPublisher interface {
	TryEmit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent)
}

// CaptureInput is the confirmation event delivered by the gateway webhook.
type CaptureInput struct {
	OrderID    uuid.UUID
	GatewayRef string
}

// CaptureOutcome reports what the reconciler did. Duplicate is true when the
// order was already paid and the callback was treated as a no-op.
type CaptureOutcome struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Duplicate  bool            `json:"duplicate"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
}

// Service reconciles deferred payments. The gateway capture runs outside the
// local transaction; stock reservation, the payment row, and the status flip
// commit together afterwards.
type Service interface {
	Capture(ctx context.Context, input CaptureInput) (*CaptureOutcome, error)
}

type service struct {
	tx          txRunner
	ordersRepo  orders.Repository
	voucherRepo vouchers.Repository
	carts       cart.Repository
	reservation reservationRunner
	gateway     capturer
	outbox      outboxPublisher
	metrics     *metrics.CheckoutMetrics
	logg        *logger.Logger
}

// NewService builds the payment capture service.
func NewService(
	tx txRunner,
	ordersRepo orders.Repository,
	voucherRepo vouchers.Repository,
	carts cart.Repository,
	reserver reservationRunner,
	capture capturer,
	publisher outboxPublisher,
	checkoutMetrics *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if voucherRepo == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if reserver == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	if capture == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:          tx,
		ordersRepo:  ordersRepo,
		voucherRepo: voucherRepo,
		carts:       carts,
		reservation: reserver,
		gateway:     capture,
		outbox:      publisher,
		metrics:     checkoutMetrics,
		logg:        logg,
	}, nil
}

func (s *service) Capture(ctx context.Context, input CaptureInput) (*CaptureOutcome, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.GatewayRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference required")
	}

	order, err := s.ordersRepo.FindOrderByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.PaymentMethod != enums.PaymentMethodGateway {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order does not use gateway settlement")
	}

	// Redelivered callbacks for an already-paid order are no-ops.
	if order.PaymentStatus == enums.PaymentStatusPaid {
		s.metrics.IncCapture("duplicate")
		existing, err := s.ordersRepo.FindPaymentByOrder(ctx, order.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		outcome := &CaptureOutcome{OrderID: order.ID, Duplicate: true}
		if existing != nil {
			outcome.AmountPaid = existing.AmountPaid
		}
		return outcome, nil
	}
	if order.OrderStatus == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}

	captured, err := s.gateway.Capture(ctx, input.GatewayRef)
	if err != nil {
		s.metrics.IncCapture("failed")
		return nil, err
	}
	if !captured.Amount.Equal(order.TotalAmount) && s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Warn(logCtx, "captured amount differs from order total")
	}

	outcome := &CaptureOutcome{OrderID: order.ID, AmountPaid: captured.Amount}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRepo.WithTx(tx)
		voucherRepo := s.voucherRepo.WithTx(tx)
		carts := s.carts.WithTx(tx)

		items, err := ordersRepo.ItemsByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
		}

		// Deferred settlement reserves here, not at placement. Stock may
		// have sold out in between; an authorized payment can still fail
		// to fulfill.
		if order.InventoryCommittedAt == nil {
			demands := make([]reservation.Demand, 0, len(items))
			variantIDs := make([]uuid.UUID, 0, len(items))
			for _, item := range items {
				demands = append(demands, reservation.Demand{VariantID: item.VariantID, Quantity: item.Quantity})
				variantIDs = append(variantIDs, item.VariantID)
			}
			if err := s.reservation.Reserve(ctx, tx, demands); err != nil {
				if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
					s.metrics.IncStockConflict()
				}
				return err
			}
			if err := carts.Clear(ctx, order.BuyerID, variantIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
			}
		}

		now := time.Now().UTC()
		transactionID := captured.TransactionID
		payment := &models.Payment{
			OrderID:       order.ID,
			Method:        order.PaymentMethod,
			Status:        enums.PaymentStatusCompleted,
			TransactionID: &transactionID,
			GatewayRef:    &input.GatewayRef,
			AmountPaid:    captured.Amount,
			PaidAt:        &now,
		}
		if err := ordersRepo.CreatePayment(ctx, payment); err != nil {
			if pkgdb.IsUniqueViolation(err, "") {
				// Lost a redelivery race after the pre-check. The winner
				// already recorded everything.
				outcome.Duplicate = true
				return pkgerrors.New(pkgerrors.CodeConflict, "payment already recorded")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
		}

		fields := map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"order_status":   enums.OrderStatusConfirmed,
		}
		if order.InventoryCommittedAt == nil {
			fields["inventory_committed_at"] = &now
		}
		if err := ordersRepo.UpdateOrder(ctx, order.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if _, err := ordersRepo.TransitionOrderItems(ctx, order.ID,
			[]enums.ItemStatus{enums.ItemStatusPending}, enums.ItemStatusConfirmed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm order items")
		}

		if order.VoucherID != nil {
			redeemed, err := voucherRepo.Redeem(ctx, *order.VoucherID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeem voucher")
			}
			if redeemed {
				s.metrics.IncRedemption("hit")
			} else {
				// The discount already shipped in the charged total, so the
				// order keeps it; the miss is recorded for reconciliation.
				s.metrics.IncRedemption("miss")
				s.outbox.TryEmit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventVoucherMissed,
					AggregateType: enums.AggregateVoucher,
					AggregateID:   *order.VoucherID,
					Data: map[string]any{
						"order_id": order.ID,
						"discount": order.DiscountAmount,
					},
					Version: 1,
				})
			}
		}

		s.outbox.TryEmit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCaptured,
			AggregateType: enums.AggregatePayment,
			AggregateID:   order.ID,
			Data: map[string]any{
				"gateway_ref":    input.GatewayRef,
				"transaction_id": captured.TransactionID,
				"amount":         captured.Amount,
			},
			Version: 1,
		})
		return nil
	})
	if err != nil {
		if outcome.Duplicate {
			s.metrics.IncCapture("duplicate")
			return outcome, nil
		}
		return nil, err
	}

	s.metrics.IncCapture("captured")
	return outcome, nil
}
