package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CheckoutCompletedEvent(t *testing.T) {
	completedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	event := CheckoutCompletedEvent{OrderNumber: "ORD-1", Namespace: "user:42", Status: "pending", Total: "120.00", ItemCount: 2, CompletedAt: completedAt}

	data, err := event.Payload()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, messaging.CheckoutCompletedSubject, event.Subject())
	assert.Equal(t, "ORD-1", decoded["order_number"])
	assert.Equal(t, "120.00", decoded["total"])
	assert.Equal(t, "2025-03-01T12:00:00Z", decoded["completed_at"])
}
