// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db              *sql.DB
	logger          *slog.Logger
	workflowRepo    *WorkflowRepository
	enrollmentRepo  *EnrollmentRepository
	stepLogRepo     *StepLogRepository
	customerRepo    *CustomerRepository
	cartRepo        *CartRepository
	unsubscribeRepo *UnsubscribeRepository
}

// NewPersistence connects, migrates and returns a PostgreSQL persistence
// layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:              database,
		logger:          logger,
		workflowRepo:    NewWorkflowRepository(database, logger),
		enrollmentRepo:  NewEnrollmentRepository(database, logger),
		stepLogRepo:     NewStepLogRepository(database, logger),
		customerRepo:    NewCustomerRepository(database),
		cartRepo:        NewCartRepository(database),
		unsubscribeRepo: NewUnsubscribeRepository(database),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollmentRepo
}

func (p *Persistence) StepLogRepository() persistence.StepLogRepository {
	return p.stepLogRepo
}

func (p *Persistence) CustomerRepository() persistence.CustomerRepository {
	return p.customerRepo
}

func (p *Persistence) CartRepository() persistence.CartRepository {
	return p.cartRepo
}

func (p *Persistence) UnsubscribeRepository() persistence.UnsubscribeRepository {
	return p.unsubscribeRepo
}
