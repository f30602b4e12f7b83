package carts

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence/file"
)

type capturedTrigger struct {
	storeID     string
	triggerType models.TriggerType
	data        map[string]any
}

type fakeTriggerHandler struct {
	triggers []capturedTrigger
	enrolled int
}

func (f *fakeTriggerHandler) HandleTrigger(_ context.Context, storeID string, triggerType models.TriggerType, data map[string]any) (int, error) {
	f.triggers = append(f.triggers, capturedTrigger{storeID: storeID, triggerType: triggerType, data: data})

	return f.enrolled, nil
}

func newDetectorFixture(t *testing.T) (*file.Persistence, *Detector, *fakeTriggerHandler, time.Time) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	handler := &fakeTriggerHandler{enrolled: 1}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	detector := NewDetector(slog.Default(), p.CartRepository(), handler, nil)
	detector.now = func() time.Time { return now }

	return p, detector, handler, now
}

func seedCart(p *file.Persistence, id string, updatedAt time.Time, customerID string, flagged bool) {
	p.SeedCart(&models.Cart{
		ID:                 id,
		StoreID:            "store-1",
		CustomerID:         customerID,
		Email:              "ada@example.com",
		Total:              129.90,
		Items:              []models.CartItem{{ProductID: "p1", Name: "Mug", Quantity: 2, Price: 64.95}},
		AbandonedEmailSent: flagged,
		UpdatedAt:          updatedAt,
	})
}

func TestCheckAbandonedCarts_TriggersInsideWindow(t *testing.T) {
	ctx := context.Background()
	p, detector, handler, now := newDetectorFixture(t)

	seedCart(p, "cart-eligible", now.Add(-2*time.Hour), "cust-1", false)

	triggered, err := detector.CheckAbandonedCarts(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, 1, triggered)

	require.Len(t, handler.triggers, 1)
	trigger := handler.triggers[0]
	assert.Equal(t, "store-1", trigger.storeID)
	assert.Equal(t, models.TriggerAbandonedCart, trigger.triggerType)
	assert.Equal(t, "cust-1", trigger.data["customer_id"])
	assert.Equal(t, "cart-eligible", trigger.data["cart_id"])
	assert.Equal(t, 129.90, trigger.data["cart_total"])
	assert.Equal(t, "ada@example.com", trigger.data["email"])
}

func TestCheckAbandonedCarts_WindowBoundaries(t *testing.T) {
	ctx := context.Background()
	p, detector, handler, now := newDetectorFixture(t)

	// Too fresh: the customer may still be shopping.
	seedCart(p, "cart-fresh", now.Add(-30*time.Minute), "cust-1", false)
	// Too stale: past the recovery window.
	seedCart(p, "cart-stale", now.Add(-25*time.Hour), "cust-2", false)

	triggered, err := detector.CheckAbandonedCarts(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, 0, triggered)
	assert.Empty(t, handler.triggers)
}

func TestCheckAbandonedCarts_SkipsAnonymousAndFlagged(t *testing.T) {
	ctx := context.Background()
	p, detector, handler, now := newDetectorFixture(t)

	seedCart(p, "cart-anonymous", now.Add(-2*time.Hour), "", false)
	seedCart(p, "cart-flagged", now.Add(-2*time.Hour), "cust-1", true)

	triggered, err := detector.CheckAbandonedCarts(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, 0, triggered)
	assert.Empty(t, handler.triggers)
}

func TestCheckAbandonedCarts_FlagsCartExactlyOnce(t *testing.T) {
	ctx := context.Background()
	p, detector, handler, now := newDetectorFixture(t)

	// No workflow matches, but the cart still gets flagged.
	handler.enrolled = 0

	seedCart(p, "cart-1", now.Add(-2*time.Hour), "cust-1", false)

	_, err := detector.CheckAbandonedCarts(ctx, "store-1")
	require.NoError(t, err)
	require.Len(t, handler.triggers, 1)

	// A second scan finds nothing left to do.
	_, err = detector.CheckAbandonedCarts(ctx, "store-1")
	require.NoError(t, err)
	assert.Len(t, handler.triggers, 1)
}
