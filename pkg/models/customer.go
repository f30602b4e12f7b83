package models

import "time"

// Customer is the collaborator-owned customer record. The engine reads it
// for condition evaluation and recipient resolution and writes custom
// fields through the field store collaborator.
type Customer struct {
	ID        string         `json:"id"`
	StoreID   string         `json:"store_id"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Field resolves a named attribute, checking the well-known columns before
// the custom field bag. The second return reports whether the field is set.
func (c *Customer) Field(name string) (any, bool) {
	if c == nil {
		return nil, false
	}

	switch name {
	case "email":
		return c.Email, c.Email != ""
	case "phone":
		return c.Phone, c.Phone != ""
	case "first_name":
		return c.FirstName, c.FirstName != ""
	case "last_name":
		return c.LastName, c.LastName != ""
	}

	value, ok := c.Fields[name]

	return value, ok
}

// Cart is the collaborator-owned cart record scanned by the abandoned cart
// detector. The detector only ever flips AbandonedEmailSent from false to
// true.
type Cart struct {
	ID                 string         `json:"id"`
	StoreID            string         `json:"store_id"`
	CustomerID         string         `json:"customer_id,omitempty"`
	Email              string         `json:"email,omitempty"`
	Total              float64        `json:"total"`
	Items              []CartItem     `json:"items,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	AbandonedEmailSent bool           `json:"is_abandoned_email_sent"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CartItem is a single line of a cart.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}
