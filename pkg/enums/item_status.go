package enums

import "fmt"

// ItemStatus tracks the lifecycle of a single order item. Completed,
// cancelled, and return are terminal; no transition reopens them.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusConfirmed ItemStatus = "confirmed"
	ItemStatusShipped   ItemStatus = "shipped"
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusCancelled ItemStatus = "cancelled"
	ItemStatusReturn    ItemStatus = "return"
)

var validItemStatuses = []ItemStatus{
	ItemStatusPending,
	ItemStatusConfirmed,
	ItemStatusShipped,
	ItemStatusCompleted,
	ItemStatusCancelled,
	ItemStatusReturn,
}

// String implements fmt.Stringer.
func (i ItemStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is a known ItemStatus.
func (i ItemStatus) IsValid() bool {
	for _, candidate := range validItemStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the item's lifecycle.
func (i ItemStatus) IsTerminal() bool {
	switch i {
	case ItemStatusCompleted, ItemStatusCancelled, ItemStatusReturn:
		return true
	default:
		return false
	}
}

// ParseItemStatus converts raw input into an ItemStatus.
func ParseItemStatus(value string) (ItemStatus, error) {
	for _, candidate := range validItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item status %q", value)
}
