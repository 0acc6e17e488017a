package checkout

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/internal/cart"
	"github.com/oakline/marketplace-backend/internal/checkout/pricing"
	"github.com/oakline/marketplace-backend/internal/checkout/reservation"
	"github.com/oakline/marketplace-backend/internal/orders"
	"github.com/oakline/marketplace-backend/internal/vouchers"
	"github.com/oakline/marketplace-backend/pkg/db/models"
	"github.com/oakline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/gateway"
	"github.com/oakline/marketplace-backend/pkg/logger"
	"github.com/oakline/marketplace-backend/pkg/metrics"
	"github.com/oakline/marketplace-backend/pkg/outbox"
	"github.com/oakline/marketplace-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settingsProvider interface {
	Current(ctx context.Context) (*models.SiteSettings, error)
}

type voucherValidator interface {
	Validate(ctx context.Context, repo vouchers.Repository, code string, items []cart.LineItem) (*vouchers.ValidationResult, error)
}

type reservationRunner interface {
	Reserve(ctx context.Context, tx *gorm.DB, demands []reservation.Demand) error
}

type authorizer interface {
	Authorize(ctx context.Context, amount decimal.Decimal, sourceID, reference string) (*gateway.AuthorizeResult, error)
}

type outboxPublisher interface {
	TryEmit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent)
}

// Service is the order assembler. Everything up to the commit happens in one
// transaction; gateway authorization runs after, against the committed order.
type Service interface {
	PlaceOrder(ctx context.Context, buyerID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error)
}

type service struct {
	tx          txRunner
	carts       cart.Repository
	ordersRepo  orders.Repository
	voucherRepo vouchers.Repository
	validator   voucherValidator
	settings    settingsProvider
	reservation reservationRunner
	gateway     authorizer
	outbox      outboxPublisher
	metrics     *metrics.CheckoutMetrics
	logg        *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	carts cart.Repository,
	ordersRepo orders.Repository,
	voucherRepo vouchers.Repository,
	validator voucherValidator,
	settings settingsProvider,
	reserver reservationRunner,
	auth authorizer,
	publisher outboxPublisher,
	checkoutMetrics *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if voucherRepo == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	if validator == nil {
		return nil, fmt.Errorf("voucher validator required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	if reserver == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:          tx,
		carts:       carts,
		ordersRepo:  ordersRepo,
		voucherRepo: voucherRepo,
		validator:   validator,
		settings:    settings,
		reservation: reserver,
		gateway:     auth,
		outbox:      publisher,
		metrics:     checkoutMetrics,
		logg:        logg,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, buyerID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error) {
	started := time.Now()
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	settlement, err := settlementFor(method)
	if err != nil {
		return nil, err
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		addressErr := pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete")
		var missing *types.MissingFieldsError
		if stderrors.As(err, &missing) {
			addressErr = addressErr.WithDetails(map[string]any{"missing_fields": missing.Fields})
		}
		return nil, addressErr
	}
	if settlement.RequiresAuthorization && input.PaymentSourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source required for gateway checkout")
	}

	siteSettings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if method == enums.PaymentMethodCOD && !siteSettings.CODEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash on delivery is disabled")
	}
	if method == enums.PaymentMethodGateway && !siteSettings.ExternalPaymentEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment is disabled")
	}

	result := &PlaceOrderResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)
		voucherRepo := s.voucherRepo.WithTx(tx)

		// Live items are re-read inside the transaction; nothing from the
		// request body influences pricing.
		items, err := carts.LiveItems(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
		}

		discount := decimal.Zero
		var voucherID *uuid.UUID
		if input.VoucherCode != "" {
			validation, err := s.validator.Validate(ctx, voucherRepo, input.VoucherCode, items)
			if err != nil {
				return err
			}
			if validation.Applicable {
				discount = validation.Discount
				id := validation.VoucherID
				voucherID = &id
			} else if s.logg != nil {
				// An ineligible voucher at this point drops the discount
				// instead of failing the order.
				logCtx := s.logg.WithBuyerID(ctx, buyerID.String())
				s.logg.Warn(logCtx, "voucher rejected at assembly, proceeding without discount")
			}
		}

		quote := pricing.Compute(items, discount, siteSettings)

		order := &models.Order{
			BuyerID:         buyerID,
			OrderStatus:     enums.OrderStatusPending,
			PaymentMethod:   method,
			PaymentStatus:   enums.PaymentStatusUnpaid,
			Subtotal:        quote.Subtotal,
			DiscountAmount:  quote.Discount,
			TaxAmount:       quote.Tax,
			ShippingFee:     quote.Shipping,
			TotalAmount:     quote.Total,
			VoucherID:       voucherID,
			ShippingAddress: input.ShippingAddress,
		}
		created, err := ordersRepo.CreateOrder(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		orderItems := make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			orderItems = append(orderItems, models.OrderItem{
				OrderID:   created.ID,
				VariantID: item.VariantID,
				SellerID:  item.SellerID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Status:    enums.ItemStatusPending,
			})
		}
		if err := ordersRepo.CreateOrderItems(ctx, orderItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
		}

		if settlement.ReserveAtPlacement {
			if err := s.reservation.Reserve(ctx, tx, reservation.DemandsFromItems(items)); err != nil {
				if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
					s.metrics.IncStockConflict()
				}
				return err
			}
			now := time.Now().UTC()
			if err := ordersRepo.UpdateOrder(ctx, created.ID, map[string]any{
				"inventory_committed_at": &now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark inventory committed")
			}

			if voucherID != nil {
				redeemed, err := voucherRepo.Redeem(ctx, *voucherID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeem voucher")
				}
				if redeemed {
					s.metrics.IncRedemption("hit")
					s.outbox.TryEmit(ctx, tx, outbox.DomainEvent{
						EventType:     enums.EventVoucherRedeemed,
						AggregateType: enums.AggregateVoucher,
						AggregateID:   *voucherID,
						Data:          map[string]any{"order_id": created.ID, "discount": quote.Discount},
						Version:       1,
					})
				} else {
					// Lost the redemption race. Reprice without the discount
					// rather than over-counting the voucher.
					s.metrics.IncRedemption("miss")
					quote = pricing.Compute(items, decimal.Zero, siteSettings)
					voucherID = nil
					if err := ordersRepo.UpdateOrder(ctx, created.ID, map[string]any{
						"discount_amount": quote.Discount,
						"total_amount":    quote.Total,
						"voucher_id":      nil,
					}); err != nil {
						return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reprice order")
					}
				}
			}

			// COD settles in cash on delivery, so the payment opens as a
			// pending row here and completes when the buyer receives.
			if err := ordersRepo.CreatePayment(ctx, &models.Payment{
				OrderID:    created.ID,
				Method:     method,
				Status:     enums.PaymentStatusPending,
				AmountPaid: quote.Total,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment record")
			}

			variantIDs := make([]uuid.UUID, 0, len(items))
			for _, item := range items {
				variantIDs = append(variantIDs, item.VariantID)
			}
			if err := carts.Clear(ctx, buyerID, variantIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
			}
		}

		s.emitPlacementEvents(ctx, tx, buyerID, created.ID, orderItems, settlement)

		result.OrderID = created.ID
		result.Total = quote.Total
		result.VoucherApplied = voucherID != nil
		result.Quote = quote
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settlement.RequiresAuthorization {
		if s.gateway == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
		}
		auth, err := s.gateway.Authorize(ctx, result.Total, input.PaymentSourceID, result.OrderID.String())
		if err != nil {
			// The pending order survives; the buyer can retry payment.
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, result.OrderID.String())
				s.logg.Error(logCtx, "gateway authorization failed", err)
			}
			return nil, err
		}
		result.GatewayRef = auth.GatewayRef
	}

	s.metrics.IncOrderPlaced(settlement.Name)
	s.metrics.ObservePlacement(time.Since(started))
	return result, nil
}

func (s *service) emitPlacementEvents(ctx context.Context, tx *gorm.DB, buyerID, orderID uuid.UUID, items []models.OrderItem, settlement Settlement) {
	actor := &outbox.ActorRef{UserID: buyerID, Role: "buyer"}
	s.outbox.TryEmit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Data: map[string]any{
			"settlement": settlement.Name,
			"item_count": len(items),
		},
		Version: 1,
	})

	sellers := map[uuid.UUID]int{}
	for _, item := range items {
		sellers[item.SellerID] += item.Quantity
	}
	for sellerID, units := range sellers {
		s.outbox.TryEmit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSellerOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data: map[string]any{
				"seller_id": sellerID,
				"units":     units,
			},
			Version: 1,
		})
	}
}
