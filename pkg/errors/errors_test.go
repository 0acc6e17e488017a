package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := stdErrors.New("row lock timeout")
	err := Wrap(CodeConflict, cause, "reservation contended")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause lost in wrap")
	}
	if err.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", err.Code())
	}
}

func TestAsUnwrapsThroughFmt(t *testing.T) {
	t.Parallel()

	inner := New(CodeInsufficientStock, "variant sold out").
		WithDetails(map[string]any{"requested": 2, "available": 1})
	wrapped := fmt.Errorf("placing order: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeInsufficientStock {
		t.Fatalf("unexpected code %s", typed.Code())
	}
	if typed.Details() == nil {
		t.Fatal("details dropped")
	}
	if !HasCode(wrapped, CodeInsufficientStock) {
		t.Fatal("HasCode missed wrapped code")
	}
}

func TestMetadataForUnknownCode(t *testing.T) {
	t.Parallel()

	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown code should map to internal, got %d", meta.HTTPStatus)
	}

	stock := MetadataFor(CodeInsufficientStock)
	if stock.HTTPStatus != http.StatusConflict || !stock.DetailsAllowed {
		t.Fatalf("unexpected insufficient stock metadata: %+v", stock)
	}
}
