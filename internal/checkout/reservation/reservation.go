package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oakline/marketplace-backend/internal/cart"
	pkgdb "github.com/oakline/marketplace-backend/pkg/db"
	"github.com/oakline/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
)

// Demand is the requested quantity for one variant.
type Demand struct {
	VariantID uuid.UUID
	Quantity  int
}

// ShortageDetail describes the first variant that could not be covered.
type ShortageDetail struct {
	VariantID string `json:"variant_id"`
	Needed    int    `json:"needed"`
	Available int    `json:"available"`
}

// Manager decrements variant stock under row locks. It runs inside the
// caller's transaction and is invoked exactly once per order, either at
// placement or at payment capture.
type Manager struct {
	lockWait time.Duration
}

func NewManager(lockWait time.Duration) *Manager {
	return &Manager{lockWait: lockWait}
}

// DemandsFromItems converts checkout line items into reservation demands.
func DemandsFromItems(items []cart.LineItem) []Demand {
	demands := make([]Demand, 0, len(items))
	for _, item := range items {
		demands = append(demands, Demand{VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return demands
}

// Reserve locks every touched variant row in ascending id order, verifies the
// full demand fits, then decrements stock. Any shortage aborts the whole
// reservation. Locks release when the enclosing transaction finishes.
func (m *Manager) Reserve(ctx context.Context, tx *gorm.DB, demands []Demand) error {
	if len(demands) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no items to reserve")
	}

	needed := make(map[uuid.UUID]int, len(demands))
	for _, demand := range demands {
		if demand.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
		}
		needed[demand.VariantID] += demand.Quantity
	}

	ids := make([]uuid.UUID, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	usesRowLocks := tx.Dialector.Name() == "postgres"
	if usesRowLocks && m.lockWait > 0 {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockWait.Milliseconds())
		if err := tx.WithContext(ctx).Exec(timeout).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set lock timeout")
		}
	}

	for _, id := range ids {
		query := tx.WithContext(ctx)
		if usesRowLocks {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var variant models.ProductVariant
		if err := query.First(&variant, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product variant no longer exists").
					WithDetails(ShortageDetail{VariantID: id.String(), Needed: needed[id]})
			}
			if pkgdb.IsLockTimeout(err) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "variant row is locked by another checkout")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock variant row")
		}

		if variant.StockQuantity < needed[id] {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(ShortageDetail{
					VariantID: id.String(),
					Needed:    needed[id],
					Available: variant.StockQuantity,
				})
		}
	}

	for _, id := range ids {
		res := tx.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ? AND stock_quantity >= ?", id, needed[id]).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", needed[id]))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "decrement stock")
		}
		if res.RowsAffected != 1 {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "stock changed during reservation").
				WithDetails(ShortageDetail{VariantID: id.String(), Needed: needed[id]})
		}
	}
	return nil
}

// Release returns previously reserved quantities to stock. Used when items
// are cancelled after their stock was committed.
func (m *Manager) Release(ctx context.Context, tx *gorm.DB, demands []Demand) error {
	for _, demand := range demands {
		if demand.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive")
		}
		res := tx.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ?", demand.VariantID).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", demand.Quantity))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "restore stock")
		}
	}
	return nil
}
