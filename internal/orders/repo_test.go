package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakline/marketplace-backend/pkg/db/models"
	"github.com/oakline/marketplace-backend/pkg/enums"
)

func TestTransitionItemOnlyMovesAllowedStates(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.New(), nil,
		itemSpec{variantID: uuid.New(), quantity: 1, status: enums.ItemStatusPending},
		itemSpec{variantID: uuid.New(), quantity: 1, status: enums.ItemStatusShipped},
	)

	moved, err := repo.TransitionItem(ctx, order.Items[0].ID,
		[]enums.ItemStatus{enums.ItemStatusPending, enums.ItemStatusConfirmed},
		enums.ItemStatusCancelled)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.TransitionItem(ctx, order.Items[1].ID,
		[]enums.ItemStatus{enums.ItemStatusPending, enums.ItemStatusConfirmed},
		enums.ItemStatusCancelled)
	require.NoError(t, err)
	assert.False(t, moved, "shipped item must not cancel")

	item, err := repo.FindItemByID(ctx, order.Items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ItemStatusShipped, item.Status)
}

func TestCountItemStatusesGroupsByState(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.New(), nil,
		itemSpec{variantID: uuid.New(), quantity: 1, status: enums.ItemStatusPending},
		itemSpec{variantID: uuid.New(), quantity: 1, status: enums.ItemStatusPending},
		itemSpec{variantID: uuid.New(), quantity: 1, status: enums.ItemStatusShipped},
		itemSpec{variantID: uuid.New(), quantity: 1, status: enums.ItemStatusCancelled},
	)

	counts, err := repo.CountItemStatuses(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 2, counts.Pending)
	assert.Equal(t, 1, counts.Shipped)
	assert.Equal(t, 1, counts.Cancelled)
	assert.Equal(t, 3, counts.Active())
}

func TestSumItemAmountsMultipliesPriceByQuantity(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.New(), nil,
		itemSpec{variantID: uuid.New(), quantity: 3, unitPrice: 250, status: enums.ItemStatusPending},
		itemSpec{variantID: uuid.New(), quantity: 2, unitPrice: 100, status: enums.ItemStatusConfirmed},
		itemSpec{variantID: uuid.New(), quantity: 1, unitPrice: 999, status: enums.ItemStatusCancelled},
	)

	sum, err := repo.SumItemAmounts(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(950)), "cancelled items must not count, got %s", sum)

	sum, err = repo.SumItemAmounts(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, sum.IsZero(), "missing order should sum to zero")
}

func TestDeleteSellerItemsRemovesOnlyThatSeller(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sellerA := uuid.New()
	sellerB := uuid.New()
	order := seedOrder(t, db, uuid.New(), nil,
		itemSpec{variantID: uuid.New(), sellerID: sellerA, quantity: 1, status: enums.ItemStatusPending},
		itemSpec{variantID: uuid.New(), sellerID: sellerA, quantity: 1, status: enums.ItemStatusPending},
		itemSpec{variantID: uuid.New(), sellerID: sellerB, quantity: 1, status: enums.ItemStatusPending},
	)

	removed, err := repo.DeleteSellerItems(ctx, order.ID, sellerA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	remaining, err := repo.ItemsByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, sellerB, remaining[0].SellerID)
}

func TestDeleteOrderCascadesItems(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, uuid.New(), nil,
		itemSpec{variantID: uuid.New(), quantity: 1, status: enums.ItemStatusPending},
	)

	require.NoError(t, repo.DeleteOrder(ctx, order.ID))

	_, err := repo.FindOrderByID(ctx, order.ID)
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count)
}
