package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadmill/leadmill/pkg/models"
)

// StepLogRepository appends and reads the write-only step audit trail.
type StepLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepLogRepository creates a new step log repository.
func NewStepLogRepository(db *sql.DB, logger *slog.Logger) *StepLogRepository {
	return &StepLogRepository{db: db, logger: logger}
}

// Append writes one audit record for a step execution attempt.
func (r *StepLogRepository) Append(ctx context.Context, entry *models.StepLog) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step log ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal step log metadata: %w", err)
	}

	query := `
		INSERT INTO step_logs (id, store_id, workflow_id, enrollment_id, customer_id,
			step_index, step_type, status, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.StoreID,
		entry.WorkflowID,
		entry.EnrollmentID,
		entry.CustomerID,
		entry.StepIndex,
		entry.StepType,
		entry.Status,
		nullableString(entry.ErrorMessage),
		metadataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append step log: %w", err)
	}

	return nil
}

// ListByEnrollment returns the enrollment's audit trail in execution order.
func (r *StepLogRepository) ListByEnrollment(ctx context.Context, storeID, enrollmentID string) ([]*models.StepLog, error) {
	query := `
		SELECT id, store_id, workflow_id, enrollment_id, customer_id,
			step_index, step_type, status, error_message, metadata, created_at
		FROM step_logs
		WHERE store_id = $1 AND enrollment_id = $2
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, storeID, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step logs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	logs := make([]*models.StepLog, 0)

	for rows.Next() {
		var (
			entry        models.StepLog
			errorMessage sql.NullString
			metadataJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.StoreID,
			&entry.WorkflowID,
			&entry.EnrollmentID,
			&entry.CustomerID,
			&entry.StepIndex,
			&entry.StepType,
			&entry.Status,
			&errorMessage,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step log: %w", err)
		}

		entry.ErrorMessage = errorMessage.String

		if len(metadataJSON) > 0 {
			err = json.Unmarshal(metadataJSON, &entry.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step log metadata: %w", err)
			}
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step logs: %w", err)
	}

	return logs, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
