package counter

import (
	"context"
	"fmt"

	"github.com/JonasWeigert/PayBridge/internal/pkg/cache"
)

const webhookDeliveriesKey = "payment:counters:webhook_deliveries"

// AddWebhookDelivery increments the pending delivery counter for a
// provider/disposition pair in Redis. Counting is best effort; callers
// ignore the error so a cache outage never blocks webhook processing.
func AddWebhookDelivery(provider, disposition string) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s", provider, disposition)
	return cache.GetClient().HIncrBy(ctx, webhookDeliveriesKey, field, 1).Err()
}

// WebhookDeliverySnapshot returns the current delivery counters keyed by
// "provider:disposition".
func WebhookDeliverySnapshot() (map[string]string, error) {
	ctx := context.Background()
	return cache.GetClient().HGetAll(ctx, webhookDeliveriesKey).Result()
}
