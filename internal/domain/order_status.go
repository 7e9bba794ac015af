package domain

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:           {OrderStatusPaymentConfirmed, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPaymentConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:          {OrderStatusOutForDelivery},
	OrderStatusOutForDelivery:   {OrderStatusDelivered},
	OrderStatusDelivered:        {OrderStatusReturned},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusPaymentConfirmed, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPlaced || s == OrderStatusPaymentConfirmed
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Restocks reports whether entering s returns the order's items to stock.
func (s OrderStatus) Restocks() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}
