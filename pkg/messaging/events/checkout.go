package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
)

// CheckoutCompletedEvent is emitted after the order service accepted a checkout.
type CheckoutCompletedEvent struct {
	OrderNumber string    `json:"order_number"`
	Namespace   string    `json:"namespace"`
	Status      string    `json:"status"`
	Total       string    `json:"total"`
	ItemCount   int       `json:"item_count"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e CheckoutCompletedEvent) Subject() string {
	return messaging.CheckoutCompletedSubject
}

func (e CheckoutCompletedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
