package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/pkg/db/models"
	"github.com/oakline/marketplace-backend/pkg/enums"
)

// StatusCounts summarizes an order's items for the roll-up recompute.
type StatusCounts struct {
	Total     int
	Cancelled int
	Completed int
	Pending   int
	Confirmed int
	Shipped   int
}

// Active is the number of items not yet in a terminal state.
func (c StatusCounts) Active() int {
	return c.Pending + c.Confirmed + c.Shipped
}

// Repository persists orders, items, and payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, fields map[string]any) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error

	FindItemByID(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	ItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	// TransitionItem moves one item from any of the listed states to the
	// target state. It reports false when the item was no longer in an
	// allowed state, which callers surface as a state conflict.
	TransitionItem(ctx context.Context, itemID uuid.UUID, from []enums.ItemStatus, to enums.ItemStatus) (bool, error)
	TransitionOrderItems(ctx context.Context, orderID uuid.UUID, from []enums.ItemStatus, to enums.ItemStatus) (int64, error)
	CountItemStatuses(ctx context.Context, orderID uuid.UUID) (StatusCounts, error)
	DeleteSellerItems(ctx context.Context, orderID, sellerID uuid.UUID) (int64, error)
	SumItemAmounts(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	UpdatePaymentByOrder(ctx context.Context, orderID uuid.UUID, fields map[string]any) error
	DeletePaymentByOrder(ctx context.Context, orderID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the orders repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(fields).Error
}

func (r *repository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("id = ?", orderID).
		Delete(&models.Order{}).Error
}

func (r *repository) FindItemByID(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) TransitionItem(ctx context.Context, itemID uuid.UUID, from []enums.ItemStatus, to enums.ItemStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND status IN ?", itemID, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) TransitionOrderItems(ctx context.Context, orderID uuid.UUID, from []enums.ItemStatus, to enums.ItemStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND status IN ?", orderID, from).
		UpdateColumn("status", to)
	return res.RowsAffected, res.Error
}

func (r *repository) CountItemStatuses(ctx context.Context, orderID uuid.UUID) (StatusCounts, error) {
	type row struct {
		Status enums.ItemStatus
		N      int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Select("status, count(*) AS n").
		Where("order_id = ?", orderID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, err
	}

	var counts StatusCounts
	for _, item := range rows {
		counts.Total += item.N
		switch item.Status {
		case enums.ItemStatusCancelled:
			counts.Cancelled += item.N
		case enums.ItemStatusCompleted:
			counts.Completed += item.N
		case enums.ItemStatusPending:
			counts.Pending += item.N
		case enums.ItemStatusConfirmed:
			counts.Confirmed += item.N
		case enums.ItemStatusShipped:
			counts.Shipped += item.N
		}
	}
	return counts, nil
}

func (r *repository) DeleteSellerItems(ctx context.Context, orderID, sellerID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		Delete(&models.OrderItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) SumItemAmounts(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Select("CAST(SUM(unit_price * quantity) AS TEXT)").
		Where("order_id = ? AND status <> ?", orderID, enums.ItemStatusCancelled).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePaymentByOrder(ctx context.Context, orderID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ?", orderID).
		Updates(fields).Error
}

func (r *repository) DeletePaymentByOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.Payment{}).Error
}
