package enums

import "fmt"

// OrderStatus is the fulfillment lifecycle of a laundry order.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusPickedUp   OrderStatus = "picked_up"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusPickedUp,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusPickedUp, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusPickedUp:   {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusDelivered},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// RequiresPayment reports whether entering this status needs a fully paid order.
func (o OrderStatus) RequiresPayment() bool {
	return o == OrderStatusCompleted || o == OrderStatusDelivered
}

// CanTransitionTo reports whether next is reachable from o in one step.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderStatusTransitions[o] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
