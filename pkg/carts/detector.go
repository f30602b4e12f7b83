// Package carts scans collaborator-owned carts and synthesizes abandoned
// cart trigger events.
package carts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadmill/leadmill/pkg/eventbus"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// Carts idle for less than MinIdle are still live sessions; carts idle for
// more than MaxIdle are stale and no longer worth a recovery email.
const (
	MinIdle = time.Hour
	MaxIdle = 24 * time.Hour
)

// TriggerHandler receives the synthesized trigger events when no event bus
// is wired.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, storeID string, triggerType models.TriggerType, data map[string]any) (int, error)
}

// Detector finds abandoned carts and dispatches abandoned_cart triggers,
// flagging each cart so it is only ever processed once.
type Detector struct {
	logger    *slog.Logger
	carts     persistence.CartRepository
	handler   TriggerHandler
	publisher eventbus.EventPublisher
	now       func() time.Time
}

// NewDetector creates a detector. When publisher is non-nil the synthesized
// triggers go through the bus; otherwise they are handed to handler in
// process.
func NewDetector(logger *slog.Logger, carts persistence.CartRepository, handler TriggerHandler, publisher eventbus.EventPublisher) *Detector {
	return &Detector{
		logger:    logger.With("module", "cart_detector"),
		carts:     carts,
		handler:   handler,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckAbandonedCarts scans one store and returns how many carts produced a
// trigger event. Every scanned cart is flagged processed regardless of
// whether any workflow matched, so a cart triggers at most once.
func (d *Detector) CheckAbandonedCarts(ctx context.Context, storeID string) (int, error) {
	now := d.now()

	abandoned, err := d.carts.Abandoned(ctx, storeID, now.Add(-MaxIdle), now.Add(-MinIdle))
	if err != nil {
		return 0, fmt.Errorf("failed to scan carts: %w", err)
	}

	triggered := 0

	for _, cart := range abandoned {
		if err := d.dispatch(ctx, storeID, cart); err != nil {
			d.logger.Error("Failed to dispatch abandoned cart trigger",
				"store_id", storeID,
				"cart_id", cart.ID,
				"error", err)
		} else {
			triggered++
		}

		if err := d.carts.MarkAbandonedEmailSent(ctx, storeID, cart.ID); err != nil {
			d.logger.Error("Failed to flag abandoned cart",
				"store_id", storeID,
				"cart_id", cart.ID,
				"error", err)
		}
	}

	return triggered, nil
}

func (d *Detector) dispatch(ctx context.Context, storeID string, cart *models.Cart) error {
	data := map[string]any{
		"customer_id": cart.CustomerID,
		"email":       cart.Email,
		"cart_id":     cart.ID,
		"cart_total":  cart.Total,
		"cart_items":  cart.Items,
	}

	if d.publisher != nil {
		return d.publisher.Publish(ctx, cart.ID, events.NewTriggerReceived(storeID, models.TriggerAbandonedCart, data))
	}

	if d.handler == nil {
		return fmt.Errorf("no trigger handler configured")
	}

	_, err := d.handler.HandleTrigger(ctx, storeID, models.TriggerAbandonedCart, data)

	return err
}
