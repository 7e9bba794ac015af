package firestore

import (
	"time"

	domain "github.com/souqly/api/internal/domain"
)

type orderDocument struct {
	Number            string                     `firestore:"number"`
	UserID            string                     `firestore:"userId"`
	CustomerEmail     string                     `firestore:"customerEmail,omitempty"`
	CustomerName      string                     `firestore:"customerName,omitempty"`
	Lines             []orderLineDocument        `firestore:"lines"`
	Totals            orderTotalsDocument        `firestore:"totals"`
	PromotionCode     string                     `firestore:"promotionCode,omitempty"`
	FreeShipping      bool                       `firestore:"freeShipping"`
	PaymentMethod     string                     `firestore:"paymentMethod"`
	PaymentStatus     string                     `firestore:"paymentStatus"`
	DeliveryMethod    string                     `firestore:"deliveryMethod"`
	Zone              string                     `firestore:"zone,omitempty"`
	ShippingAddress   addressDocument            `firestore:"shippingAddress"`
	Status            string                     `firestore:"status"`
	Source            string                     `firestore:"source"`
	Notes             string                     `firestore:"notes,omitempty"`
	EstimatedDelivery time.Time                  `firestore:"estimatedDelivery"`
	DeliveredAt       *time.Time                 `firestore:"deliveredAt,omitempty"`
	Cancellation      *orderCancellationDocument `firestore:"cancellation,omitempty"`
	Return            *orderReturnDocument       `firestore:"return,omitempty"`
	Restocked         bool                       `firestore:"restocked"`
	CreatedAt         time.Time                  `firestore:"createdAt"`
	UpdatedAt         time.Time                  `firestore:"updatedAt"`
}

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int64  `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Condition string `firestore:"condition,omitempty"`
	LineTotal int64  `firestore:"lineTotal"`
}

type orderTotalsDocument struct {
	Subtotal    int64 `firestore:"subtotal"`
	Discount    int64 `firestore:"discount"`
	VAT         int64 `firestore:"vat"`
	DeliveryFee int64 `firestore:"deliveryFee"`
	Total       int64 `firestore:"total"`
}

type addressDocument struct {
	FullName   string `firestore:"fullName,omitempty"`
	Phone      string `firestore:"phone"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	Zone       string `firestore:"zone,omitempty"`
	Country    string `firestore:"country"`
	PostalCode string `firestore:"postalCode,omitempty"`
}

type orderCancellationDocument struct {
	Reason      string    `firestore:"reason,omitempty"`
	CancelledBy string    `firestore:"cancelledBy,omitempty"`
	CancelledAt time.Time `firestore:"cancelledAt"`
}

type orderReturnDocument struct {
	Reason     string    `firestore:"reason,omitempty"`
	ReturnedBy string    `firestore:"returnedBy,omitempty"`
	ReturnedAt time.Time `firestore:"returnedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		Number:        o.Number,
		UserID:        o.UserID,
		CustomerEmail: o.Customer.Email,
		CustomerName:  o.Customer.Name,
		Lines:         make([]orderLineDocument, 0, len(o.Lines)),
		Totals: orderTotalsDocument{
			Subtotal:    o.Totals.Subtotal,
			Discount:    o.Totals.Discount,
			VAT:         o.Totals.VAT,
			DeliveryFee: o.Totals.DeliveryFee,
			Total:       o.Totals.Total,
		},
		PromotionCode:  o.PromotionCode,
		FreeShipping:   o.FreeShipping,
		PaymentMethod:  string(o.PaymentMethod),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryMethod: string(o.DeliveryMethod),
		Zone:           o.Zone,
		ShippingAddress: addressDocument{
			FullName:   o.ShippingAddress.FullName,
			Phone:      o.ShippingAddress.Phone,
			Street:     o.ShippingAddress.Street,
			City:       o.ShippingAddress.City,
			Zone:       o.ShippingAddress.Zone,
			Country:    o.ShippingAddress.Country,
			PostalCode: o.ShippingAddress.PostalCode,
		},
		Status:            string(o.Status),
		Source:            string(o.Source),
		Notes:             o.Notes,
		EstimatedDelivery: o.EstimatedDelivery.UTC(),
		Restocked:         o.Restocked,
		CreatedAt:         o.CreatedAt.UTC(),
		UpdatedAt:         o.UpdatedAt.UTC(),
	}
	for _, line := range o.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument(line))
	}
	if o.DeliveredAt != nil {
		delivered := o.DeliveredAt.UTC()
		doc.DeliveredAt = &delivered
	}
	if o.Cancellation != nil {
		doc.Cancellation = &orderCancellationDocument{
			Reason:      o.Cancellation.Reason,
			CancelledBy: o.Cancellation.CancelledBy,
			CancelledAt: o.Cancellation.CancelledAt.UTC(),
		}
	}
	if o.Return != nil {
		doc.Return = &orderReturnDocument{
			Reason:     o.Return.Reason,
			ReturnedBy: o.Return.ReturnedBy,
			ReturnedAt: o.Return.ReturnedAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:       id,
		Number:   d.Number,
		UserID:   d.UserID,
		Customer: domain.Customer{Email: d.CustomerEmail, Name: d.CustomerName},
		Lines:    make([]domain.OrderLine, 0, len(d.Lines)),
		Totals: domain.OrderTotals{
			Subtotal:    d.Totals.Subtotal,
			Discount:    d.Totals.Discount,
			VAT:         d.Totals.VAT,
			DeliveryFee: d.Totals.DeliveryFee,
			Total:       d.Totals.Total,
		},
		PromotionCode:  d.PromotionCode,
		FreeShipping:   d.FreeShipping,
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		DeliveryMethod: domain.DeliveryMethod(d.DeliveryMethod),
		Zone:           d.Zone,
		ShippingAddress: domain.ShippingAddress{
			FullName:   d.ShippingAddress.FullName,
			Phone:      d.ShippingAddress.Phone,
			Street:     d.ShippingAddress.Street,
			City:       d.ShippingAddress.City,
			Zone:       d.ShippingAddress.Zone,
			Country:    d.ShippingAddress.Country,
			PostalCode: d.ShippingAddress.PostalCode,
		},
		Status:            domain.OrderStatus(d.Status),
		Source:            domain.OrderSource(d.Source),
		Notes:             d.Notes,
		EstimatedDelivery: d.EstimatedDelivery,
		DeliveredAt:       d.DeliveredAt,
		Restocked:         d.Restocked,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLine(line))
	}
	if d.Cancellation != nil {
		order.Cancellation = &domain.OrderCancellation{
			Reason:      d.Cancellation.Reason,
			CancelledBy: d.Cancellation.CancelledBy,
			CancelledAt: d.Cancellation.CancelledAt,
		}
	}
	if d.Return != nil {
		order.Return = &domain.OrderReturn{
			Reason:     d.Return.Reason,
			ReturnedBy: d.Return.ReturnedBy,
			ReturnedAt: d.Return.ReturnedAt,
		}
	}
	return order
}
