package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// EnrollmentRepository handles enrollment-related database operations,
// including the pending-claim lease.
type EnrollmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(db *sql.DB, logger *slog.Logger) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, logger: logger}
}

const enrollmentColumns = `
	id
  , store_id
  , workflow_id
  , customer_id
  , status
  , current_step
  , next_step_at
  , last_step_at
  , processing_until
  , trigger_data
  , exit_reason
  , completed_at
  , dedup_key
  , created_at
  , updated_at
`

const uniqueViolationCode = "23505"

// Create inserts a new enrollment. The partial unique index on dedup_key
// turns concurrent identical trigger events into ErrDuplicateEnrollment
// instead of a second active row.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()

	if enrollment.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate enrollment ID: %w", err)
		}

		enrollment.ID = id.String()
	}

	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}

	enrollment.UpdatedAt = now

	triggerDataJSON, err := json.Marshal(enrollment.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	query := `
		INSERT INTO enrollments (id, store_id, workflow_id, customer_id, status, current_step,
			next_step_at, last_step_at, processing_until, trigger_data, exit_reason, completed_at,
			dedup_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		enrollment.ID,
		enrollment.StoreID,
		enrollment.WorkflowID,
		enrollment.CustomerID,
		enrollment.Status,
		enrollment.CurrentStep,
		enrollment.NextStepAt,
		enrollment.LastStepAt,
		enrollment.ProcessingUntil,
		triggerDataJSON,
		enrollment.ExitReason,
		enrollment.CompletedAt,
		enrollment.DedupKey,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return persistence.NewEnrollmentError("Create", enrollment.ID, persistence.ErrDuplicateEnrollment)
		}

		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	return nil
}

// GetByID returns an enrollment by its ID, scoped to the store.
func (r *EnrollmentRepository) GetByID(ctx context.Context, storeID, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE store_id = $1 AND id = $2
	`

	row := r.db.QueryRowContext(ctx, query, storeID, id)

	enrollment, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

// GetActive returns the customer's active enrollment in the workflow, or nil.
func (r *EnrollmentRepository) GetActive(ctx context.Context, storeID, workflowID, customerID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE store_id = $1 AND workflow_id = $2 AND customer_id = $3 AND status = $4
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, storeID, workflowID, customerID, models.EnrollmentStatusActive)

	enrollment, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

// ListByWorkflow returns all enrollments of a workflow, newest first.
func (r *EnrollmentRepository) ListByWorkflow(ctx context.Context, storeID, workflowID string) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE store_id = $1 AND workflow_id = $2
		ORDER BY created_at DESC
	`

	return r.queryEnrollments(ctx, query, storeID, workflowID)
}

// ClaimPending atomically leases eligible enrollments. SKIP LOCKED keeps
// overlapping poll cycles from claiming the same rows; the processing_until
// stamp keeps a second cycle out until the lease expires even if this
// process dies mid-step.
func (r *EnrollmentRepository) ClaimPending(ctx context.Context, storeID string, now time.Time, lease time.Duration, limit int) ([]*models.Enrollment, error) {
	query := `
		UPDATE enrollments SET processing_until = $1
		WHERE id IN (
			SELECT id FROM enrollments
			WHERE store_id = $2
			  AND status = $3
			  AND (next_step_at IS NULL OR next_step_at <= $4)
			  AND (processing_until IS NULL OR processing_until <= $4)
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + enrollmentColumns

	return r.queryEnrollments(ctx, query,
		now.Add(lease), storeID, models.EnrollmentStatusActive, now, limit)
}

// Update persists the enrollment's mutable fields and clears the lease.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	enrollment.ProcessingUntil = nil

	triggerDataJSON, err := json.Marshal(enrollment.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	query := `
		UPDATE enrollments SET
			status = $3,
			current_step = $4,
			next_step_at = $5,
			last_step_at = $6,
			processing_until = NULL,
			trigger_data = $7,
			exit_reason = $8,
			completed_at = $9,
			updated_at = $10
		WHERE store_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		enrollment.StoreID,
		enrollment.ID,
		enrollment.Status,
		enrollment.CurrentStep,
		enrollment.NextStepAt,
		enrollment.LastStepAt,
		triggerDataJSON,
		enrollment.ExitReason,
		enrollment.CompletedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewEnrollmentError("Update", enrollment.ID, persistence.ErrEnrollmentNotFound)
	}

	return nil
}

// Release clears the processing lease without other changes.
func (r *EnrollmentRepository) Release(ctx context.Context, storeID, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE enrollments SET processing_until = NULL WHERE store_id = $1 AND id = $2",
		storeID, id)
	if err != nil {
		return persistence.NewEnrollmentError("Release", id, err)
	}

	return nil
}

func (r *EnrollmentRepository) queryEnrollments(ctx context.Context, query string, args ...any) ([]*models.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	enrollments := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		enrollments = append(enrollments, enrollment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return enrollments, nil
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enrollment      models.Enrollment
		triggerDataJSON []byte
	)

	err := row.Scan(
		&enrollment.ID,
		&enrollment.StoreID,
		&enrollment.WorkflowID,
		&enrollment.CustomerID,
		&enrollment.Status,
		&enrollment.CurrentStep,
		&enrollment.NextStepAt,
		&enrollment.LastStepAt,
		&enrollment.ProcessingUntil,
		&triggerDataJSON,
		&enrollment.ExitReason,
		&enrollment.CompletedAt,
		&enrollment.DedupKey,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerDataJSON) > 0 {
		err = json.Unmarshal(triggerDataJSON, &enrollment.TriggerData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	return &enrollment, nil
}
