package paymentwebhook

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
)

func TestConstructEventRoundTrip(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	payload := []byte(`{"event_id":"evt_1","type":"payment.updated","order_id":"` + orderID.String() + `","gateway_ref":"ref_9"}`)
	secret := "whsec_test"

	event, err := ConstructEvent(payload, Sign(payload, secret), secret)
	if err != nil {
		t.Fatalf("construct event: %v", err)
	}
	if event.OrderID != orderID || event.GatewayRef != "ref_9" || event.Type != EventTypeCaptured {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestConstructEventRejectsBadSignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event_id":"evt_1"}`)
	_, err := ConstructEvent(payload, Sign(payload, "other"), "whsec_test")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	_, err = ConstructEvent(payload, "", "whsec_test")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type fakeStore struct {
	keys map[string]bool
}

func (s *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.keys == nil {
		s.keys = map[string]bool{}
	}
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func TestIdempotencyGuardMarksOnce(t *testing.T) {
	t.Parallel()

	guard, err := NewIdempotencyGuard(&fakeStore{}, time.Hour, "payment-webhook")
	if err != nil {
		t.Fatalf("build guard: %v", err)
	}
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if seen {
		t.Fatal("first delivery must not be marked seen")
	}
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if !seen {
		t.Fatal("redelivery must be marked seen")
	}

	if err := guard.Delete(ctx, "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("third mark: %v", err)
	}
	if seen {
		t.Fatal("deleted event must be reprocessable")
	}
}
