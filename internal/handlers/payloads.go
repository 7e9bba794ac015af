package handlers

import (
	"github.com/souqly/api/internal/services"
)

type pricedLinePayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Condition string `json:"condition,omitempty"`
	LineTotal int64  `json:"lineTotal"`
}

type promotionPayload struct {
	Code         string `json:"code"`
	Type         string `json:"type"`
	Discount     int64  `json:"discount"`
	FreeShipping bool   `json:"freeShipping"`
	Description  string `json:"description,omitempty"`
}

type deliveryPayload struct {
	Zone      string `json:"zone,omitempty"`
	Method    string `json:"method"`
	Fee       int64  `json:"fee"`
	Days      int    `json:"days"`
	Defaulted bool   `json:"defaulted"`
}

type pricingPayload struct {
	Currency           string              `json:"currency"`
	Lines              []pricedLinePayload `json:"lines"`
	Dropped            []string            `json:"dropped,omitempty"`
	Subtotal           int64               `json:"subtotal"`
	Discount           int64               `json:"discount"`
	DiscountedSubtotal int64               `json:"discountedSubtotal"`
	VAT                int64               `json:"vat"`
	DeliveryFee        int64               `json:"deliveryFee"`
	Total              int64               `json:"total"`
	Promotion          *promotionPayload   `json:"promotion,omitempty"`
	Delivery           deliveryPayload     `json:"delivery"`
	EstimatedDelivery  string              `json:"estimatedDelivery,omitempty"`
}

type cartItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
	AddedAt   string `json:"addedAt,omitempty"`
}

type cartPayload struct {
	Owner          string            `json:"owner"`
	Items          []cartItemPayload `json:"items"`
	PromotionCode  string            `json:"promotionCode,omitempty"`
	Pricing        pricingPayload    `json:"pricing"`
	PromotionError string            `json:"promotionError,omitempty"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
}

func buildPricingPayload(pricing services.PricingBreakdown) pricingPayload {
	payload := pricingPayload{
		Currency:           pricing.Currency,
		Lines:              make([]pricedLinePayload, 0, len(pricing.Lines)),
		Dropped:            pricing.Dropped,
		Subtotal:           pricing.Subtotal,
		Discount:           pricing.Discount,
		DiscountedSubtotal: pricing.DiscountedSubtotal,
		VAT:                pricing.VAT,
		DeliveryFee:        pricing.DeliveryFee,
		Total:              pricing.Total,
		Delivery: deliveryPayload{
			Zone:      pricing.Delivery.Zone,
			Method:    string(pricing.Delivery.Method),
			Fee:       pricing.Delivery.Fee,
			Days:      pricing.Delivery.Days,
			Defaulted: pricing.Delivery.Defaulted,
		},
		EstimatedDelivery: formatDate(pricing.EstimatedDeliveryDay),
	}
	for _, line := range pricing.Lines {
		payload.Lines = append(payload.Lines, pricedLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Condition: line.Condition,
			LineTotal: line.LineTotal,
		})
	}
	if promo := pricing.Promotion; promo != nil {
		payload.Promotion = &promotionPayload{
			Code:         promo.Code,
			Type:         string(promo.Type),
			Discount:     promo.Discount,
			FreeShipping: promo.FreeShipping,
			Description:  promo.Description,
		}
	}
	return payload
}

func buildCartPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		Owner:         view.Cart.Owner.Key(),
		Items:         make([]cartItemPayload, 0, len(view.Cart.Items)),
		PromotionCode: view.Cart.PromotionCode,
		Pricing:       buildPricingPayload(view.Pricing),
		UpdatedAt:     formatTime(view.Cart.UpdatedAt),
	}
	for _, item := range view.Cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   formatTime(item.AddedAt),
		})
	}
	if view.PromotionError != nil {
		payload.PromotionError = view.PromotionError.Error()
	}
	return payload
}

type orderLinePayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Condition string `json:"condition,omitempty"`
	LineTotal int64  `json:"lineTotal"`
}

type orderTotalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	Discount    int64 `json:"discount"`
	VAT         int64 `json:"vat"`
	DeliveryFee int64 `json:"deliveryFee"`
	Total       int64 `json:"total"`
}

type addressPayload struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Zone       string `json:"zone"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode,omitempty"`
}

type orderEventPayload struct {
	Reason string `json:"reason,omitempty"`
	By     string `json:"by,omitempty"`
	At     string `json:"at,omitempty"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	Number            string             `json:"number"`
	UserID            string             `json:"userId,omitempty"`
	Status            string             `json:"status"`
	Source            string             `json:"source"`
	PaymentMethod     string             `json:"paymentMethod"`
	PaymentStatus     string             `json:"paymentStatus"`
	DeliveryMethod    string             `json:"deliveryMethod"`
	Zone              string             `json:"zone"`
	PromotionCode     string             `json:"promotionCode,omitempty"`
	FreeShipping      bool               `json:"freeShipping"`
	Lines             []orderLinePayload `json:"lines"`
	Totals            orderTotalsPayload `json:"totals"`
	ShippingAddress   addressPayload     `json:"shippingAddress"`
	Notes             string             `json:"notes,omitempty"`
	EstimatedDelivery string             `json:"estimatedDelivery,omitempty"`
	DeliveredAt       string             `json:"deliveredAt,omitempty"`
	Cancellation      *orderEventPayload `json:"cancellation,omitempty"`
	Return            *orderEventPayload `json:"return,omitempty"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
}

type orderSummaryPayload struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	CreatedAt string `json:"createdAt"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	addr := order.ShippingAddress
	payload := orderPayload{
		ID:             order.ID,
		Number:         order.Number,
		UserID:         order.UserID,
		Status:         string(order.Status),
		Source:         string(order.Source),
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		DeliveryMethod: string(order.DeliveryMethod),
		Zone:           order.Zone,
		PromotionCode:  order.PromotionCode,
		FreeShipping:   order.FreeShipping,
		Lines:          make([]orderLinePayload, 0, len(order.Lines)),
		Totals: orderTotalsPayload{
			Subtotal:    order.Totals.Subtotal,
			Discount:    order.Totals.Discount,
			VAT:         order.Totals.VAT,
			DeliveryFee: order.Totals.DeliveryFee,
			Total:       order.Totals.Total,
		},
		ShippingAddress: addressPayload{
			FullName:   addr.FullName,
			Phone:      addr.Phone,
			Street:     addr.Street,
			City:       addr.City,
			Zone:       addr.Zone,
			Country:    addr.Country,
			PostalCode: addr.PostalCode,
		},
		Notes:             order.Notes,
		EstimatedDelivery: formatDate(order.EstimatedDelivery),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Condition: line.Condition,
			LineTotal: line.LineTotal,
		})
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTime(*order.DeliveredAt)
	}
	if c := order.Cancellation; c != nil {
		payload.Cancellation = &orderEventPayload{Reason: c.Reason, By: c.CancelledBy, At: formatTime(c.CancelledAt)}
	}
	if ret := order.Return; ret != nil {
		payload.Return = &orderEventPayload{Reason: ret.Reason, By: ret.ReturnedBy, At: formatTime(ret.ReturnedAt)}
	}
	return payload
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:        order.ID,
		Number:    order.Number,
		Status:    string(order.Status),
		Total:     order.Totals.Total,
		CreatedAt: formatTime(order.CreatedAt),
	}
}

func buildOrderList(page []services.Order, next string) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page))
	for _, order := range page {
		items = append(items, buildOrderSummary(order))
	}
	return orderListResponse{Items: items, NextPageToken: next}
}
