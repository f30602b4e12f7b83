package actions

import (
	"context"
	"fmt"

	"github.com/leadmill/leadmill/pkg/models"
)

// SegmentAction adds or removes the enrolled customer from a static segment.
type SegmentAction struct {
	stepType models.StepType
	segments SegmentStore
}

func NewSegmentAction(stepType models.StepType, segments SegmentStore) *SegmentAction {
	return &SegmentAction{stepType: stepType, segments: segments}
}

func (a *SegmentAction) Type() models.StepType {
	return a.stepType
}

func (a *SegmentAction) Execute(ctx context.Context, actx Context) Result {
	if a.segments == nil {
		return failure("no segment store configured")
	}

	segmentID, _ := actx.Config["segment_id"].(string)
	if segmentID == "" {
		return failure(fmt.Sprintf("%s step is missing segment_id", a.stepType))
	}

	customerID := actx.Enrollment.CustomerID

	var err error
	if a.stepType == models.StepAddToSegment {
		err = a.segments.AddToSegment(ctx, actx.StoreID, customerID, segmentID)
	} else {
		err = a.segments.RemoveFromSegment(ctx, actx.StoreID, customerID, segmentID)
	}

	if err != nil {
		return failure(fmt.Sprintf("failed to update segment membership: %s", err))
	}

	return Result{
		Success:  true,
		Metadata: map[string]any{"segment_id": segmentID},
	}
}
