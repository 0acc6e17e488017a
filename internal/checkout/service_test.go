package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/internal/cart"
	"github.com/oakline/marketplace-backend/internal/checkout/reservation"
	"github.com/oakline/marketplace-backend/internal/orders"
	"github.com/oakline/marketplace-backend/internal/vouchers"
	"github.com/oakline/marketplace-backend/pkg/db/models"
	"github.com/oakline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/gateway"
	"github.com/oakline/marketplace-backend/pkg/outbox"
	"github.com/oakline/marketplace-backend/pkg/types"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubSettings struct {
	settings models.SiteSettings
}

func (s stubSettings) Current(ctx context.Context) (*models.SiteSettings, error) {
	copied := s.settings
	return &copied, nil
}

type stubGateway struct {
	authorize func(ctx context.Context, amount decimal.Decimal, sourceID, reference string) (*gateway.AuthorizeResult, error)
	calls     int
}

func (s *stubGateway) Authorize(ctx context.Context, amount decimal.Decimal, sourceID, reference string) (*gateway.AuthorizeResult, error) {
	s.calls++
	if s.authorize != nil {
		return s.authorize(ctx, amount, sourceID, reference)
	}
	return &gateway.AuthorizeResult{GatewayRef: "auth-" + reference}, nil
}

type recordingPublisher struct {
	events []outbox.DomainEvent
}

func (p *recordingPublisher) TryEmit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) {
	p.events = append(p.events, event)
}

type fixture struct {
	db        *gorm.DB
	service   Service
	gateway   *stubGateway
	publisher *recordingPublisher
}

func newFixture(t *testing.T, settings models.SiteSettings) *fixture {
	t.Helper()

	db := newTestDB(t)
	gatewayStub := &stubGateway{}
	publisher := &recordingPublisher{}
	carts := cart.NewRepository(db)
	voucherRepo := vouchers.NewRepository(db)

	svc, err := NewService(
		testTxRunner{db: db},
		carts,
		orders.NewRepository(db),
		voucherRepo,
		vouchers.NewService(voucherRepo, carts),
		stubSettings{settings: settings},
		reservation.NewManager(0),
		gatewayStub,
		publisher,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &fixture{db: db, service: svc, gateway: gatewayStub, publisher: publisher}
}

func defaultSettings() models.SiteSettings {
	return models.SiteSettings{
		FlatShipping:           true,
		FlatRateAmount:         decimal.NewFromInt(50),
		CODEnabled:             true,
		ExternalPaymentEnabled: true,
	}
}

func testAddress() types.Address {
	return types.Address{
		Line1:      "12 Harbor Road",
		City:       "Portsmouth",
		State:      "NH",
		PostalCode: "03801",
		Country:    "US",
	}
}

func TestPlaceOrderImmediateSettlement(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultSettings())
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	variantA := seedVariant(t, fx.db, sellerID, 400, 10)
	variantB := seedVariant(t, fx.db, sellerID, 200, 5)
	seedCartItem(t, fx.db, buyerID, variantA, 2)
	seedCartItem(t, fx.db, buyerID, variantB, 1)
	seedVoucher(t, fx.db, sellerID, "save10", enums.DiscountTypePercentage, 10, nil)

	result, err := fx.service.PlaceOrder(ctx, buyerID, PlaceOrderInput{
		PaymentMethod:   "cod",
		VoucherCode:     "SAVE10",
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	// subtotal 1000, 10% voucher, 3% tax, flat 50 shipping.
	if !result.Total.Equal(decimal.NewFromInt(980)) {
		t.Fatalf("expected total 980, got %s", result.Total)
	}
	if !result.VoucherApplied {
		t.Fatal("expected voucher applied")
	}
	if result.GatewayRef != "" {
		t.Fatalf("cod checkout must not touch the gateway, got ref %q", result.GatewayRef)
	}
	if fx.gateway.calls != 0 {
		t.Fatalf("expected no gateway calls, got %d", fx.gateway.calls)
	}

	var order models.Order
	if err := fx.db.Preload("Items").First(&order, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.OrderStatus != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("unexpected order state: %s/%s", order.OrderStatus, order.PaymentStatus)
	}
	if order.InventoryCommittedAt == nil {
		t.Fatal("expected inventory committed at placement")
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}

	if got := stockOf(t, fx.db, variantA); got != 8 {
		t.Fatalf("expected variant A stock 8, got %d", got)
	}
	if got := cartCount(t, fx.db, buyerID); got != 0 {
		t.Fatalf("expected cart cleared, got %d rows", got)
	}

	var voucher models.Voucher
	if err := fx.db.First(&voucher, "code = ?", "save10").Error; err != nil {
		t.Fatalf("load voucher: %v", err)
	}
	if voucher.UsedCount != 1 {
		t.Fatalf("expected voucher redeemed once, got %d", voucher.UsedCount)
	}
}

func TestPlaceOrderCODOpensPendingPayment(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultSettings())
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	variantID := seedVariant(t, fx.db, sellerID, 250, 5)
	seedCartItem(t, fx.db, buyerID, variantID, 2)

	result, err := fx.service.PlaceOrder(ctx, buyerID, PlaceOrderInput{
		PaymentMethod:   "cod",
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	var payments []models.Payment
	if err := fx.db.Find(&payments, "order_id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected one payment row, got %d", len(payments))
	}
	payment := payments[0]
	if payment.Method != enums.PaymentMethodCOD {
		t.Fatalf("expected cod payment, got %s", payment.Method)
	}
	if payment.Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", payment.Status)
	}
	if !payment.AmountPaid.Equal(result.Total) {
		t.Fatalf("expected payment amount %s, got %s", result.Total, payment.AmountPaid)
	}
	if payment.PaidAt != nil {
		t.Fatal("cod payment must not be marked paid at placement")
	}
}

func TestPlaceOrderDeferredSettlementSkipsReservation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultSettings())
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	variantID := seedVariant(t, fx.db, sellerID, 100, 4)
	seedCartItem(t, fx.db, buyerID, variantID, 2)

	result, err := fx.service.PlaceOrder(ctx, buyerID, PlaceOrderInput{
		PaymentMethod:   "gateway",
		PaymentSourceID: "tok_123",
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.GatewayRef == "" {
		t.Fatal("expected gateway reference")
	}
	if fx.gateway.calls != 1 {
		t.Fatalf("expected one authorization, got %d", fx.gateway.calls)
	}

	// Stock and cart are untouched until capture.
	if got := stockOf(t, fx.db, variantID); got != 4 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
	if got := cartCount(t, fx.db, buyerID); got != 1 {
		t.Fatalf("expected cart kept, got %d rows", got)
	}

	var order models.Order
	if err := fx.db.First(&order, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.InventoryCommittedAt != nil {
		t.Fatal("deferred order must not commit inventory at placement")
	}
}

func TestPlaceOrderInsufficientStockRollsBackEverything(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultSettings())
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	plenty := seedVariant(t, fx.db, sellerID, 100, 50)
	scarce := seedVariant(t, fx.db, sellerID, 100, 1)
	seedCartItem(t, fx.db, buyerID, plenty, 2)
	seedCartItem(t, fx.db, buyerID, scarce, 3)

	_, err := fx.service.PlaceOrder(ctx, buyerID, PlaceOrderInput{
		PaymentMethod:   "cod",
		ShippingAddress: testAddress(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var orderCount int64
	if err := fx.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatal("expected no order row after rollback")
	}
	if got := stockOf(t, fx.db, plenty); got != 50 {
		t.Fatalf("expected stock 50 after rollback, got %d", got)
	}
	if got := cartCount(t, fx.db, buyerID); got != 2 {
		t.Fatalf("expected cart intact, got %d rows", got)
	}
}

func TestPlaceOrderIneligibleVoucherDropsDiscount(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultSettings())
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()

	variantID := seedVariant(t, fx.db, sellerID, 1000, 10)
	seedCartItem(t, fx.db, buyerID, variantID, 1)
	limit := 1
	voucherID := seedVoucher(t, fx.db, sellerID, "spent", enums.DiscountTypePercentage, 10, &limit)
	if err := fx.db.Model(&models.Voucher{}).Where("id = ?", voucherID).
		UpdateColumn("used_count", 1).Error; err != nil {
		t.Fatalf("exhaust voucher: %v", err)
	}

	result, err := fx.service.PlaceOrder(ctx, buyerID, PlaceOrderInput{
		PaymentMethod:   "cod",
		VoucherCode:     "spent",
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.VoucherApplied {
		t.Fatal("expected discount dropped")
	}
	// 1000 + 30 tax + 50 shipping, no discount.
	if !result.Total.Equal(decimal.NewFromInt(1080)) {
		t.Fatalf("expected total 1080, got %s", result.Total)
	}
}

func TestPlaceOrderRejectsEmptyCart(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultSettings())
	_, err := fx.service.PlaceOrder(context.Background(), uuid.New(), PlaceOrderInput{
		PaymentMethod:   "cod",
		ShippingAddress: testAddress(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderRejectsDisabledMethod(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.CODEnabled = false
	fx := newFixture(t, settings)

	_, err := fx.service.PlaceOrder(context.Background(), uuid.New(), PlaceOrderInput{
		PaymentMethod:   "cod",
		ShippingAddress: testAddress(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderEmitsPlacementEvents(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, defaultSettings())
	ctx := context.Background()
	buyerID := uuid.New()

	seedCartItem(t, fx.db, buyerID, seedVariant(t, fx.db, uuid.New(), 100, 5), 1)
	seedCartItem(t, fx.db, buyerID, seedVariant(t, fx.db, uuid.New(), 100, 5), 1)

	if _, err := fx.service.PlaceOrder(ctx, buyerID, PlaceOrderInput{
		PaymentMethod:   "cod",
		ShippingAddress: testAddress(),
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	var created, sellerPlaced int
	for _, event := range fx.publisher.events {
		switch event.EventType {
		case enums.EventOrderCreated:
			created++
		case enums.EventSellerOrderPlaced:
			sellerPlaced++
		}
	}
	if created != 1 {
		t.Fatalf("expected one order.created event, got %d", created)
	}
	if sellerPlaced != 2 {
		t.Fatalf("expected one seller event per seller, got %d", sellerPlaced)
	}
}

func seedVariant(t *testing.T, db *gorm.DB, sellerID uuid.UUID, price int64, stock int) uuid.UUID {
	t.Helper()
	variant := models.ProductVariant{
		ID:            uuid.New(),
		SellerID:      sellerID,
		SKU:           "sku-" + uuid.NewString()[:8],
		Name:          "test variant",
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant.ID
}

func seedCartItem(t *testing.T, db *gorm.DB, buyerID, variantID uuid.UUID, quantity int) {
	t.Helper()
	item := models.CartItem{ID: uuid.New(), BuyerID: buyerID, VariantID: variantID, Quantity: quantity}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
}

func seedVoucher(t *testing.T, db *gorm.DB, sellerID uuid.UUID, code string, discountType enums.DiscountType, value int64, usageLimit *int) uuid.UUID {
	t.Helper()
	voucher := models.Voucher{
		ID:            uuid.New(),
		SellerID:      sellerID,
		Code:          code,
		DiscountType:  discountType,
		DiscountValue: decimal.NewFromInt(value),
		UsageLimit:    usageLimit,
		Status:        enums.VoucherStatusActive,
	}
	if err := db.Create(&voucher).Error; err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
	return voucher.ID
}

func stockOf(t *testing.T, db *gorm.DB, variantID uuid.UUID) int {
	t.Helper()
	var variant models.ProductVariant
	if err := db.First(&variant, "id = ?", variantID).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	return variant.StockQuantity
}

func cartCount(t *testing.T, db *gorm.DB, buyerID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.CartItem{}).Where("buyer_id = ?", buyerID).Count(&count).Error; err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	return count
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.ProductVariant{},
		&models.CartItem{},
		&models.Voucher{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
