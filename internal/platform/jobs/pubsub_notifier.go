package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"google.golang.org/grpc/codes"

	"github.com/souqly/api/internal/services"
)

const (
	eventOrderStatus = "order.status"
	eventLowStock    = "inventory.low_stock"

	defaultPublishTimeout = 10 * time.Second
)

// PubSubNotifierDeps configures the Pub/Sub notifier. Either topic may be nil
// to disable that notification kind.
type PubSubNotifierDeps struct {
	StatusTopic    *pubsub.Topic
	LowStockTopic  *pubsub.Topic
	Currency       string
	DefaultLocale  string
	PublishTimeout time.Duration
}

// PubSubNotifier publishes order notifications for the downstream mailer and
// operator alerting.
type PubSubNotifier struct {
	statusTopic   *pubsub.Topic
	lowStockTopic *pubsub.Topic
	currency      string
	locale        language.Tag
	timeout       time.Duration
	marshal       func(any) ([]byte, error)
	retryer       func() gax.Retryer
}

var _ services.OrderNotifier = (*PubSubNotifier)(nil)

// NewPubSubNotifier constructs a Pub/Sub backed order notifier.
func NewPubSubNotifier(deps PubSubNotifierDeps) (*PubSubNotifier, error) {
	if deps.StatusTopic == nil && deps.LowStockTopic == nil {
		return nil, errors.New("pubsub notifier: at least one topic is required")
	}
	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "EGP"
	}
	return &PubSubNotifier{
		statusTopic:   deps.StatusTopic,
		lowStockTopic: deps.LowStockTopic,
		currency:      currency,
		locale:        parseLocale(deps.DefaultLocale, language.English),
		timeout:       timeout,
		marshal:       json.Marshal,
		retryer: func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted, codes.Aborted}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		},
	}, nil
}

// OrderStatusMessage is the payload published for order status changes.
type OrderStatusMessage struct {
	Event       string    `json:"event"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId,omitempty"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Status      string    `json:"status"`
	Total       int64     `json:"total"`
	Currency    string    `json:"currency"`
	Locale      string    `json:"locale"`
	Summary     string    `json:"summary"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// LowStockMessage is the payload published when stock runs low.
type LowStockMessage struct {
	Event      string    `json:"event"`
	ProductID  string    `json:"productId"`
	Name       string    `json:"name,omitempty"`
	Remaining  int64     `json:"remaining"`
	Threshold  int64     `json:"threshold"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (p *PubSubNotifier) NotifyOrderStatus(ctx context.Context, note services.OrderStatusNotification) error {
	if p == nil || p.statusTopic == nil {
		return nil
	}
	locale := parseLocale(note.Locale, p.locale)
	msg := OrderStatusMessage{
		Event:       eventOrderStatus,
		OrderID:     note.OrderID,
		OrderNumber: note.OrderNumber,
		UserID:      note.UserID,
		Email:       note.Email,
		Name:        note.Name,
		Status:      string(note.Status),
		Total:       note.Total,
		Currency:    p.currency,
		Locale:      locale.String(),
		Summary:     StatusSummary(locale, note.OrderNumber, string(note.Status), p.currency, note.Total),
		OccurredAt:  note.OccurredAt.UTC(),
	}
	attrs := map[string]string{"event": eventOrderStatus}
	setAttr(attrs, "orderId", note.OrderID)
	setAttr(attrs, "status", string(note.Status))
	setAttr(attrs, "locale", msg.Locale)
	_, err := p.publish(ctx, p.statusTopic, msg, attrs)
	return err
}

func (p *PubSubNotifier) NotifyLowStock(ctx context.Context, note services.LowStockNotification) error {
	if p == nil || p.lowStockTopic == nil {
		return nil
	}
	msg := LowStockMessage{
		Event:      eventLowStock,
		ProductID:  note.ProductID,
		Name:       note.Name,
		Remaining:  note.Remaining,
		Threshold:  note.Threshold,
		OccurredAt: note.OccurredAt.UTC(),
	}
	attrs := map[string]string{"event": eventLowStock}
	setAttr(attrs, "productId", note.ProductID)
	_, err := p.publish(ctx, p.lowStockTopic, msg, attrs)
	return err
}

func (p *PubSubNotifier) publish(ctx context.Context, topic *pubsub.Topic, payload any, attrs map[string]string) (string, error) {
	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var id string
	err = gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
		var err error
		id, err = result.Get(ctx)
		return err
	}, gax.WithRetry(p.retryer))
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", attrs["event"], err)
	}
	return id, nil
}

// StatusSummary renders the one-line status text in the recipient's locale,
// with the total formatted from minor units.
func StatusSummary(locale language.Tag, orderNumber, status, currency string, total int64) string {
	p := message.NewPrinter(locale)
	amount := number.Decimal(float64(total)/100, number.Scale(2))
	return p.Sprintf("Order %s is now %s. Total: %s %v", orderNumber, strings.ReplaceAll(status, "_", " "), currency, amount)
}

func parseLocale(tag string, fallback language.Tag) language.Tag {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fallback
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return fallback
	}
	return parsed
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
