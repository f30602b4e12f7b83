// Package actions implements the executors behind workflow action steps.
// Flow-control steps (delay, condition, exit) are resolved by the state
// machine and never reach this package.
package actions

import (
	"context"
	"log/slog"

	"github.com/leadmill/leadmill/pkg/models"
)

// Result is the outcome of one action execution attempt. ShouldExit
// terminates the enrollment (e.g. the recipient unsubscribed); a plain
// failure is logged and the enrollment still advances.
type Result struct {
	Success    bool
	Error      string
	ShouldExit bool
	Metadata   map[string]any
}

// Context carries everything an executor may need for one step.
type Context struct {
	StoreID    string
	Workflow   *models.Workflow
	Enrollment *models.Enrollment
	// Customer is the enrolled customer's record, nil when the collaborator
	// store no longer has it.
	Customer *models.Customer
	Config   map[string]any
	Logger   *slog.Logger
}

// TriggerData returns the data bag captured at enrollment time.
func (c Context) TriggerData() map[string]any {
	if c.Enrollment == nil {
		return nil
	}

	return c.Enrollment.TriggerData
}

// RecipientEmail resolves the outbound email address: customer record first,
// then the trigger data bag.
func (c Context) RecipientEmail() string {
	if c.Customer != nil && c.Customer.Email != "" {
		return c.Customer.Email
	}

	email, _ := c.TriggerData()["email"].(string)

	return email
}

// RecipientPhone resolves the outbound phone number the same way.
func (c Context) RecipientPhone() string {
	if c.Customer != nil && c.Customer.Phone != "" {
		return c.Customer.Phone
	}

	phone, _ := c.TriggerData()["phone"].(string)

	return phone
}

// Action executes one step type.
type Action interface {
	Type() models.StepType
	Execute(ctx context.Context, actx Context) Result
}

// Registry maps step types to their executors.
type Registry struct {
	actions map[models.StepType]Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[models.StepType]Action)}
}

// Register adds an action executor, replacing any previous one of the same
// type.
func (r *Registry) Register(action Action) {
	r.actions[action.Type()] = action
}

// Get returns the executor for a step type.
func (r *Registry) Get(stepType models.StepType) (Action, bool) {
	action, ok := r.actions[stepType]

	return action, ok
}

// Collaborators bundles the external services the built-in executors call.
// Nil members are tolerated; the corresponding executor fails its steps with
// a configuration error instead of panicking.
type Collaborators struct {
	EmailSender   EmailSender
	SMSSender     SMSSender
	Tags          TagStore
	Segments      SegmentStore
	Fields        FieldStore
	Notifier      Notifier
	WebhookCaller WebhookCaller
	Unsubscribes  UnsubscribeChecker
}

// DefaultRegistry registers every built-in executor.
func DefaultRegistry(collaborators Collaborators) *Registry {
	registry := NewRegistry()

	registry.Register(NewSendEmailAction(collaborators.EmailSender, collaborators.Unsubscribes))
	registry.Register(NewSendSMSAction(collaborators.SMSSender))
	registry.Register(NewTagAction(models.StepAddTag, collaborators.Tags))
	registry.Register(NewTagAction(models.StepRemoveTag, collaborators.Tags))
	registry.Register(NewUpdateFieldAction(collaborators.Fields))
	registry.Register(NewSegmentAction(models.StepAddToSegment, collaborators.Segments))
	registry.Register(NewSegmentAction(models.StepRemoveFromSegment, collaborators.Segments))
	registry.Register(NewWebhookAction(collaborators.WebhookCaller))
	registry.Register(NewNotificationAction(collaborators.Notifier))

	return registry
}

func failure(message string) Result {
	return Result{Success: false, Error: message}
}
