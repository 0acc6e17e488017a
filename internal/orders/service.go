package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/internal/checkout/pricing"
	"github.com/oakline/marketplace-backend/internal/checkout/reservation"
	"github.com/oakline/marketplace-backend/pkg/db/models"
	"github.com/oakline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/logger"
	"github.com/oakline/marketplace-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, demands []reservation.Demand) error
}

type outboxPublisher interface {
	TryEmit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent)
}

// Service runs the order and item status state machine. Order status is never
// set directly from the outside; it is recomputed after every item move.
type Service interface {
	GetOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	CancelItem(ctx context.Context, buyerID, itemID uuid.UUID) (*models.Order, error)
	MarkShipped(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkReceived(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	RequestRefund(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	RemoveSellerItems(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	releaser stockReleaser
	outbox   outboxPublisher
	logg     *logger.Logger
}

// NewService builds the orders service.
func NewService(tx txRunner, repo Repository, releaser stockReleaser, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if releaser == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{tx: tx, repo: repo, releaser: releaser, outbox: publisher, logg: logg}, nil
}

func (s *service) GetOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}
	return order, nil
}

// CancelItem cancels one item while it is still pending or confirmed. Stock
// committed for the item goes back to the variant.
func (s *service) CancelItem(ctx context.Context, buyerID, itemID uuid.UUID) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindItemByID(ctx, itemID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order item")
		}
		order, err := s.loadOrder(ctx, repo, item.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}

		moved, err := repo.TransitionItem(ctx, itemID,
			[]enums.ItemStatus{enums.ItemStatusPending, enums.ItemStatusConfirmed},
			enums.ItemStatusCancelled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order item")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "item can no longer be cancelled")
		}

		if order.InventoryCommittedAt != nil {
			demands := []reservation.Demand{{VariantID: item.VariantID, Quantity: item.Quantity}}
			if err := s.releaser.Release(ctx, tx, demands); err != nil {
				return err
			}
		}

		result, err = s.recomputeOrder(ctx, tx, repo, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkShipped moves every still-active item to shipped.
func (s *service) MarkShipped(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.transitionOrderItems(ctx, orderID, nil,
		[]enums.ItemStatus{enums.ItemStatusPending, enums.ItemStatusConfirmed},
		enums.ItemStatusShipped, "no items are ready to ship")
}

// MarkReceived promotes shipped items to completed.
func (s *service) MarkReceived(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	return s.transitionOrderItems(ctx, orderID, &buyerID,
		[]enums.ItemStatus{enums.ItemStatusShipped},
		enums.ItemStatusCompleted, "no shipped items to receive")
}

// RequestRefund flags shipped items for return.
func (s *service) RequestRefund(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	return s.transitionOrderItems(ctx, orderID, &buyerID,
		[]enums.ItemStatus{enums.ItemStatusShipped},
		enums.ItemStatusReturn, "no shipped items to refund")
}

func (s *service) transitionOrderItems(ctx context.Context, orderID uuid.UUID, buyerID *uuid.UUID, from []enums.ItemStatus, to enums.ItemStatus, conflictMsg string) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if buyerID != nil && order.BuyerID != *buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}

		moved, err := repo.TransitionOrderItems(ctx, orderID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition order items")
		}
		if moved == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, conflictMsg)
		}

		result, err = s.recomputeOrder(ctx, tx, repo, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveSellerItems is the administrative path that strips one seller's items
// out of a multi-seller order. An emptied order disappears entirely,
// payment record included.
func (s *service) RemoveSellerItems(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}

		var removed []models.OrderItem
		for _, item := range order.Items {
			if item.SellerID == sellerID && !item.Status.IsTerminal() {
				removed = append(removed, item)
			}
		}

		deleted, err := repo.DeleteSellerItems(ctx, orderID, sellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete seller items")
		}
		if deleted == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "seller has no items on this order")
		}

		if order.InventoryCommittedAt != nil && len(removed) > 0 {
			demands := make([]reservation.Demand, 0, len(removed))
			for _, item := range removed {
				demands = append(demands, reservation.Demand{VariantID: item.VariantID, Quantity: item.Quantity})
			}
			if err := s.releaser.Release(ctx, tx, demands); err != nil {
				return err
			}
		}

		counts, err := repo.CountItemStatuses(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count remaining items")
		}
		if counts.Total == 0 {
			if err := repo.DeletePaymentByOrder(ctx, orderID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete payment")
			}
			if err := repo.DeleteOrder(ctx, orderID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order")
			}
			result = nil
			return nil
		}

		subtotal, err := repo.SumItemAmounts(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum surviving items")
		}
		tax := pricing.Tax(subtotal)
		discounted := subtotal.Sub(order.DiscountAmount)
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}
		total := discounted.Add(tax).Add(order.ShippingFee).Round(2)
		if err := repo.UpdateOrder(ctx, orderID, map[string]any{
			"subtotal":     subtotal,
			"tax_amount":   tax,
			"total_amount": total,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recompute order totals")
		}

		result, err = s.recomputeOrder(ctx, tx, repo, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// recomputeOrder derives the order status from item counts and persists it.
func (s *service) recomputeOrder(ctx context.Context, tx *gorm.DB, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	counts, err := repo.CountItemStatuses(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count item statuses")
	}

	status := RollUp(counts)
	if err := repo.UpdateOrder(ctx, orderID, map[string]any{"order_status": status}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	s.outbox.TryEmit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusMoved,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          map[string]any{"order_status": status},
		Version:       1,
	})

	order, err := repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	if status == enums.OrderStatusCompleted &&
		order.PaymentMethod == enums.PaymentMethodCOD &&
		order.PaymentStatus != enums.PaymentStatusPaid {
		return s.settleCODPayment(ctx, tx, repo, order)
	}
	return order, nil
}

// settleCODPayment closes out a cash-on-delivery order once every item has
// reached a terminal state. The pending payment row opened at placement flips
// to completed and the order is marked paid.
func (s *service) settleCODPayment(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) (*models.Order, error) {
	now := time.Now().UTC()
	if err := repo.UpdatePaymentByOrder(ctx, order.ID, map[string]any{
		"status":      enums.PaymentStatusCompleted,
		"paid_at":     &now,
		"amount_paid": order.TotalAmount,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle cod payment")
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusPaid}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}

	s.outbox.TryEmit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCaptured,
		AggregateType: enums.AggregatePayment,
		AggregateID:   order.ID,
		Data:          map[string]any{"method": enums.PaymentMethodCOD, "amount": order.TotalAmount},
		Version:       1,
	})

	return repo.FindOrderByID(ctx, order.ID)
}

// RollUp derives an order status from its item counts. Counting active items
// beats inspecting every row: zero active means the order is finished one way
// or the other, and otherwise the earliest active stage wins.
func RollUp(counts StatusCounts) enums.OrderStatus {
	if counts.Total == 0 {
		return enums.OrderStatusCancelled
	}
	if counts.Active() == 0 {
		if counts.Cancelled == counts.Total {
			return enums.OrderStatusCancelled
		}
		return enums.OrderStatusCompleted
	}
	switch {
	case counts.Pending > 0:
		return enums.OrderStatusPending
	case counts.Confirmed > 0:
		return enums.OrderStatusConfirmed
	default:
		return enums.OrderStatusShipped
	}
}
