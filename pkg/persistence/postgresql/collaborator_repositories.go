package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// CustomerRepository reads collaborator-owned customer records.
type CustomerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a new customer repository.
func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// GetByID returns a customer, scoped to the store.
func (r *CustomerRepository) GetByID(ctx context.Context, storeID, customerID string) (*models.Customer, error) {
	query := `
		SELECT id, store_id, email, phone, first_name, last_name, fields, created_at
		FROM customers
		WHERE store_id = $1 AND id = $2
	`

	var (
		customer   models.Customer
		email      sql.NullString
		phone      sql.NullString
		firstName  sql.NullString
		lastName   sql.NullString
		fieldsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, storeID, customerID).Scan(
		&customer.ID,
		&customer.StoreID,
		&email,
		&phone,
		&firstName,
		&lastName,
		&fieldsJSON,
		&customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrCustomerNotFound
		}

		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}

	customer.Email = email.String
	customer.Phone = phone.String
	customer.FirstName = firstName.String
	customer.LastName = lastName.String

	if len(fieldsJSON) > 0 {
		err = json.Unmarshal(fieldsJSON, &customer.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal customer fields: %w", err)
		}
	}

	return &customer, nil
}

// CartRepository reads collaborator-owned carts for the abandoned cart scan.
type CartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new cart repository.
func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// Abandoned returns unflagged carts with a customer, last touched inside the
// idle window.
func (r *CartRepository) Abandoned(ctx context.Context, storeID string, idleSince, idleBefore time.Time) ([]*models.Cart, error) {
	query := `
		SELECT id, store_id, customer_id, email, total, items, metadata, is_abandoned_email_sent, updated_at
		FROM carts
		WHERE store_id = $1
		  AND customer_id IS NOT NULL
		  AND NOT is_abandoned_email_sent
		  AND updated_at > $2
		  AND updated_at <= $3
		ORDER BY updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, storeID, idleSince, idleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query abandoned carts: %w", err)
	}

	defer func() { _ = rows.Close() }()

	carts := make([]*models.Cart, 0)

	for rows.Next() {
		var (
			cart         models.Cart
			customerID   sql.NullString
			email        sql.NullString
			itemsJSON    []byte
			metadataJSON []byte
		)

		err := rows.Scan(
			&cart.ID,
			&cart.StoreID,
			&customerID,
			&email,
			&cart.Total,
			&itemsJSON,
			&metadataJSON,
			&cart.AbandonedEmailSent,
			&cart.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}

		cart.CustomerID = customerID.String
		cart.Email = email.String

		if len(itemsJSON) > 0 {
			err = json.Unmarshal(itemsJSON, &cart.Items)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal cart items: %w", err)
			}
		}

		if len(metadataJSON) > 0 {
			err = json.Unmarshal(metadataJSON, &cart.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal cart metadata: %w", err)
			}
		}

		carts = append(carts, &cart)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating carts: %w", err)
	}

	return carts, nil
}

// MarkAbandonedEmailSent flips the processed flag, idempotently.
func (r *CartRepository) MarkAbandonedEmailSent(ctx context.Context, storeID, cartID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE carts SET is_abandoned_email_sent = TRUE WHERE store_id = $1 AND id = $2",
		storeID, cartID)
	if err != nil {
		return fmt.Errorf("failed to mark cart processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrCartNotFound
	}

	return nil
}

// UnsubscribeRepository consults the store's unsubscribe list.
type UnsubscribeRepository struct {
	db *sql.DB
}

// NewUnsubscribeRepository creates a new unsubscribe repository.
func NewUnsubscribeRepository(db *sql.DB) *UnsubscribeRepository {
	return &UnsubscribeRepository{db: db}
}

// IsUnsubscribed reports whether the email is on the store's unsubscribe
// list.
func (r *UnsubscribeRepository) IsUnsubscribed(ctx context.Context, storeID, email string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM unsubscribes WHERE store_id = $1 AND email = $2)",
		storeID, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query unsubscribe list: %w", err)
	}

	return exists, nil
}
