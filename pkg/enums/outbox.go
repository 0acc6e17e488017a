package enums

// OutboxEventType names a domain event recorded through the outbox.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order.created"
	EventSellerOrderPlaced OutboxEventType = "order.seller_placed"
	EventOrderStatusMoved  OutboxEventType = "order.status_changed"
	EventPaymentCaptured   OutboxEventType = "payment.captured"
	EventVoucherRedeemed   OutboxEventType = "voucher.redeemed"
	EventVoucherMissed     OutboxEventType = "voucher.redemption_missed"
)

// OutboxAggregateType names the aggregate an event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateVoucher OutboxAggregateType = "voucher"
)
