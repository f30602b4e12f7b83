// Package file provides a file-backed persistence implementation for
// development and tests. Collections are held in memory behind one lock and
// flushed to JSON files under the root directory on every write.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string

	mu           sync.Mutex
	workflows    map[string]*models.Workflow
	enrollments  map[string]*models.Enrollment
	stepLogs     []*models.StepLog
	customers    map[string]*models.Customer
	carts        map[string]*models.Cart
	unsubscribes map[string]bool
}

// NewPersistence creates a file persistence rooted at the given directory,
// loading any collections already on disk. The "file://" prefix used by
// database URLs is accepted.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{
		root:         cleanRoot,
		workflows:    make(map[string]*models.Workflow),
		enrollments:  make(map[string]*models.Enrollment),
		stepLogs:     make([]*models.StepLog, 0),
		customers:    make(map[string]*models.Customer),
		carts:        make(map[string]*models.Cart),
		unsubscribes: make(map[string]bool),
	}

	_ = os.MkdirAll(cleanRoot, 0o750)
	p.load()

	return p
}

// Close flushes all collections.
func (p *Persistence) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flush()
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{p}
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return &enrollmentRepository{p}
}

func (p *Persistence) StepLogRepository() persistence.StepLogRepository {
	return &stepLogRepository{p}
}

func (p *Persistence) CustomerRepository() persistence.CustomerRepository {
	return &customerRepository{p}
}

func (p *Persistence) CartRepository() persistence.CartRepository {
	return &cartRepository{p}
}

func (p *Persistence) UnsubscribeRepository() persistence.UnsubscribeRepository {
	return &unsubscribeRepository{p}
}

// SeedCustomer stores a collaborator-owned customer record, for fixtures.
func (p *Persistence) SeedCustomer(customer *models.Customer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.customers[customer.StoreID+":"+customer.ID] = customer
	_ = p.flush()
}

// SeedCart stores a collaborator-owned cart record, for fixtures.
func (p *Persistence) SeedCart(cart *models.Cart) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.carts[cart.StoreID+":"+cart.ID] = cart
	_ = p.flush()
}

// SeedUnsubscribe adds an email to a store's unsubscribe list, for fixtures.
func (p *Persistence) SeedUnsubscribe(storeID, email string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unsubscribes[storeID+":"+email] = true
	_ = p.flush()
}

func (p *Persistence) load() {
	loadCollection(p.root, "workflows.json", &p.workflows)
	loadCollection(p.root, "enrollments.json", &p.enrollments)
	loadCollection(p.root, "step_logs.json", &p.stepLogs)
	loadCollection(p.root, "customers.json", &p.customers)
	loadCollection(p.root, "carts.json", &p.carts)
	loadCollection(p.root, "unsubscribes.json", &p.unsubscribes)
}

// flush writes every collection; callers hold the lock.
func (p *Persistence) flush() error {
	collections := map[string]any{
		"workflows.json":    p.workflows,
		"enrollments.json":  p.enrollments,
		"step_logs.json":    p.stepLogs,
		"customers.json":    p.customers,
		"carts.json":        p.carts,
		"unsubscribes.json": p.unsubscribes,
	}

	for name, collection := range collections {
		data, err := json.MarshalIndent(collection, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", name, err)
		}

		err = os.WriteFile(filepath.Join(p.root, name), data, 0o600)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}

func loadCollection[T any](root, name string, target *T) {
	data, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		return
	}

	_ = json.Unmarshal(data, target)
}

type workflowRepository struct {
	p *Persistence
}

func (r *workflowRepository) GetAll(_ context.Context, storeID string) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflows := make([]*models.Workflow, 0)

	for _, workflow := range r.p.workflows {
		if workflow.StoreID == storeID {
			workflows = append(workflows, cloneWorkflow(workflow))
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *workflowRepository) GetByID(_ context.Context, storeID, id string) (*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok || workflow.StoreID != storeID {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow), nil
}

func (r *workflowRepository) GetActiveByTrigger(_ context.Context, storeID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflows := make([]*models.Workflow, 0)

	for _, workflow := range r.p.workflows {
		if workflow.StoreID == storeID &&
			workflow.Status == models.WorkflowStatusActive &&
			workflow.TriggerType == trigger {
			workflows = append(workflows, cloneWorkflow(workflow))
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	r.p.workflows[workflow.ID] = cloneWorkflow(workflow)

	return r.p.flush()
}

func (r *workflowRepository) Delete(_ context.Context, storeID, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok || workflow.StoreID != storeID {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.p.workflows, id)

	return r.p.flush()
}

func (r *workflowRepository) StoreIDs(_ context.Context) ([]string, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)

	for _, workflow := range r.p.workflows {
		if !seen[workflow.StoreID] {
			seen[workflow.StoreID] = true

			ids = append(ids, workflow.StoreID)
		}
	}

	sort.Strings(ids)

	return ids, nil
}

type enrollmentRepository struct {
	p *Persistence
}

func (r *enrollmentRepository) Create(_ context.Context, enrollment *models.Enrollment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if enrollment.ID == "" {
		enrollment.ID = uuid.New().String()
	}

	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}

	enrollment.UpdatedAt = now

	for _, existing := range r.p.enrollments {
		if existing.DedupKey == enrollment.DedupKey &&
			existing.Status == models.EnrollmentStatusActive {
			return persistence.NewEnrollmentError("Create", enrollment.ID, persistence.ErrDuplicateEnrollment)
		}
	}

	r.p.enrollments[enrollment.ID] = cloneEnrollment(enrollment)

	return r.p.flush()
}

func (r *enrollmentRepository) GetByID(_ context.Context, storeID, id string) (*models.Enrollment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	enrollment, ok := r.p.enrollments[id]
	if !ok || enrollment.StoreID != storeID {
		return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
	}

	return cloneEnrollment(enrollment), nil
}

func (r *enrollmentRepository) GetActive(_ context.Context, storeID, workflowID, customerID string) (*models.Enrollment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, enrollment := range r.p.enrollments {
		if enrollment.StoreID == storeID &&
			enrollment.WorkflowID == workflowID &&
			enrollment.CustomerID == customerID &&
			enrollment.Status == models.EnrollmentStatusActive {
			return cloneEnrollment(enrollment), nil
		}
	}

	return nil, nil
}

func (r *enrollmentRepository) ListByWorkflow(_ context.Context, storeID, workflowID string) ([]*models.Enrollment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	enrollments := make([]*models.Enrollment, 0)

	for _, enrollment := range r.p.enrollments {
		if enrollment.StoreID == storeID && enrollment.WorkflowID == workflowID {
			enrollments = append(enrollments, cloneEnrollment(enrollment))
		}
	}

	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].CreatedAt.After(enrollments[j].CreatedAt)
	})

	return enrollments, nil
}

func (r *enrollmentRepository) ClaimPending(_ context.Context, storeID string, now time.Time, lease time.Duration, limit int) ([]*models.Enrollment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	eligible := make([]*models.Enrollment, 0)

	for _, enrollment := range r.p.enrollments {
		if enrollment.StoreID != storeID || enrollment.Status != models.EnrollmentStatusActive {
			continue
		}

		if enrollment.NextStepAt != nil && enrollment.NextStepAt.After(now) {
			continue
		}

		if enrollment.ProcessingUntil != nil && enrollment.ProcessingUntil.After(now) {
			continue
		}

		eligible = append(eligible, enrollment)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	until := now.Add(lease)
	claimed := make([]*models.Enrollment, 0, len(eligible))

	for _, enrollment := range eligible {
		enrollment.ProcessingUntil = &until
		claimed = append(claimed, cloneEnrollment(enrollment))
	}

	return claimed, r.p.flush()
}

func (r *enrollmentRepository) Update(_ context.Context, enrollment *models.Enrollment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing, ok := r.p.enrollments[enrollment.ID]
	if !ok || existing.StoreID != enrollment.StoreID {
		return persistence.NewEnrollmentError("Update", enrollment.ID, persistence.ErrEnrollmentNotFound)
	}

	enrollment.UpdatedAt = time.Now().UTC()
	enrollment.ProcessingUntil = nil

	stored := cloneEnrollment(enrollment)
	stored.CreatedAt = existing.CreatedAt
	r.p.enrollments[enrollment.ID] = stored

	return r.p.flush()
}

func (r *enrollmentRepository) Release(_ context.Context, storeID, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	enrollment, ok := r.p.enrollments[id]
	if !ok || enrollment.StoreID != storeID {
		return persistence.NewEnrollmentError("Release", id, persistence.ErrEnrollmentNotFound)
	}

	enrollment.ProcessingUntil = nil

	return r.p.flush()
}

type stepLogRepository struct {
	p *Persistence
}

func (r *stepLogRepository) Append(_ context.Context, entry *models.StepLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	stored := *entry
	r.p.stepLogs = append(r.p.stepLogs, &stored)

	return r.p.flush()
}

func (r *stepLogRepository) ListByEnrollment(_ context.Context, storeID, enrollmentID string) ([]*models.StepLog, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	logs := make([]*models.StepLog, 0)

	for _, entry := range r.p.stepLogs {
		if entry.StoreID == storeID && entry.EnrollmentID == enrollmentID {
			stored := *entry
			logs = append(logs, &stored)
		}
	}

	return logs, nil
}

type customerRepository struct {
	p *Persistence
}

func (r *customerRepository) GetByID(_ context.Context, storeID, customerID string) (*models.Customer, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	customer, ok := r.p.customers[storeID+":"+customerID]
	if !ok {
		return nil, persistence.ErrCustomerNotFound
	}

	stored := *customer

	return &stored, nil
}

type cartRepository struct {
	p *Persistence
}

func (r *cartRepository) Abandoned(_ context.Context, storeID string, idleSince, idleBefore time.Time) ([]*models.Cart, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	carts := make([]*models.Cart, 0)

	for _, cart := range r.p.carts {
		if cart.StoreID != storeID || cart.CustomerID == "" || cart.AbandonedEmailSent {
			continue
		}

		if !cart.UpdatedAt.After(idleSince) || cart.UpdatedAt.After(idleBefore) {
			continue
		}

		stored := *cart
		carts = append(carts, &stored)
	}

	sort.Slice(carts, func(i, j int) bool {
		return carts[i].UpdatedAt.Before(carts[j].UpdatedAt)
	})

	return carts, nil
}

func (r *cartRepository) MarkAbandonedEmailSent(_ context.Context, storeID, cartID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	cart, ok := r.p.carts[storeID+":"+cartID]
	if !ok {
		return persistence.ErrCartNotFound
	}

	cart.AbandonedEmailSent = true

	return r.p.flush()
}

type unsubscribeRepository struct {
	p *Persistence
}

func (r *unsubscribeRepository) IsUnsubscribed(_ context.Context, storeID, email string) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.unsubscribes[storeID+":"+email], nil
}

func cloneWorkflow(workflow *models.Workflow) *models.Workflow {
	clone := *workflow
	clone.Steps = append([]models.Step(nil), workflow.Steps...)

	if workflow.TriggerConfig != nil {
		config := *workflow.TriggerConfig
		config.Conditions = append([]models.Condition(nil), workflow.TriggerConfig.Conditions...)
		clone.TriggerConfig = &config
	}

	return &clone
}

func cloneEnrollment(enrollment *models.Enrollment) *models.Enrollment {
	clone := *enrollment

	if enrollment.TriggerData != nil {
		clone.TriggerData = make(map[string]any, len(enrollment.TriggerData))
		for k, v := range enrollment.TriggerData {
			clone.TriggerData[k] = v
		}
	}

	return &clone
}
