package actions

import (
	"context"
	"fmt"

	"github.com/leadmill/leadmill/pkg/models"
)

// TagAction adds or removes tags on the enrolled customer, depending on the
// step type it was registered for.
type TagAction struct {
	stepType models.StepType
	tags     TagStore
}

func NewTagAction(stepType models.StepType, tags TagStore) *TagAction {
	return &TagAction{stepType: stepType, tags: tags}
}

func (a *TagAction) Type() models.StepType {
	return a.stepType
}

func (a *TagAction) Execute(ctx context.Context, actx Context) Result {
	if a.tags == nil {
		return failure("no tag store configured")
	}

	tags := stringSlice(actx.Config["tags"])
	if len(tags) == 0 {
		return failure(fmt.Sprintf("%s step is missing tags", a.stepType))
	}

	customerID := actx.Enrollment.CustomerID

	var err error
	if a.stepType == models.StepAddTag {
		err = a.tags.AddTags(ctx, actx.StoreID, customerID, tags)
	} else {
		err = a.tags.RemoveTags(ctx, actx.StoreID, customerID, tags)
	}

	if err != nil {
		return failure(fmt.Sprintf("failed to update tags: %s", err))
	}

	return Result{
		Success:  true,
		Metadata: map[string]any{"tags": tags},
	}
}

// stringSlice normalizes a JSON-decoded array into []string, skipping
// non-string members.
func stringSlice(value any) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		result := make([]string, 0, len(typed))

		for _, item := range typed {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}

		return result
	default:
		return nil
	}
}
