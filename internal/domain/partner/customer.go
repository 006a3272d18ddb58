package partner

import (
	"regexp"
	"strings"
	"time"

	"github.com/atelier/backend/internal/domain/shared"
)

// CustomerSource records where a customer record originated
type CustomerSource string

const (
	CustomerSourceLocal       CustomerSource = "local"
	CustomerSourceWooCommerce CustomerSource = "woocommerce"
)

// IsValid returns true if the source is valid
func (s CustomerSource) IsValid() bool {
	return s == CustomerSourceLocal || s == CustomerSourceWooCommerce
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Customer represents a buyer in the partner context.
// Storefront orders carry billing details rather than stable identifiers,
// so externally sourced customers are matched by email first, then phone.
type Customer struct {
	shared.BaseAggregateRoot
	Name       string         `gorm:"type:varchar(200);not null"`
	Email      string         `gorm:"type:varchar(200);index"`
	Phone      string         `gorm:"type:varchar(50);index"`
	Address    string         `gorm:"type:text"`
	City       string         `gorm:"type:varchar(100)"`
	PostalCode string         `gorm:"type:varchar(20)"`
	Country    string         `gorm:"type:varchar(100)"`
	Source     CustomerSource `gorm:"type:varchar(20);not null;default:'local'"`
	ExternalID *string        `gorm:"uniqueIndex"` // storefront customer ID, nil for guests and locals
	Notes      string         `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Customer) TableName() string {
	return "customers"
}

// NewCustomer creates a new locally managed customer
func NewCustomer(name string) (*Customer, error) {
	if err := validateCustomerName(name); err != nil {
		return nil, err
	}

	c := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Source:            CustomerSourceLocal,
	}

	c.AddDomainEvent(NewCustomerCreatedEvent(c))

	return c, nil
}

// NewExternalCustomer creates a customer record from storefront billing info.
// externalID is empty for guest checkouts; those records are matched by
// contact details only.
func NewExternalCustomer(name, email, phone string, externalID string) (*Customer, error) {
	if name == "" {
		name = "Guest"
	}
	if err := validateCustomerName(name); err != nil {
		return nil, err
	}
	if email != "" && !emailPattern.MatchString(email) {
		return nil, shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}

	c := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Email:             strings.ToLower(email),
		Phone:             phone,
		Source:            CustomerSourceWooCommerce,
	}
	if externalID != "" {
		c.ExternalID = &externalID
	}

	c.AddDomainEvent(NewCustomerCreatedEvent(c))

	return c, nil
}

// IsGuest returns true for externally sourced customers without a stable
// storefront identifier
func (c *Customer) IsGuest() bool {
	return c.Source == CustomerSourceWooCommerce && c.ExternalID == nil
}

// Update updates the customer's basic information
func (c *Customer) Update(name, email, phone string) error {
	if err := validateCustomerName(name); err != nil {
		return err
	}
	if email != "" && !emailPattern.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}

	c.Name = name
	c.Email = strings.ToLower(email)
	c.Phone = phone
	c.UpdatedAt = time.Now()
	c.IncrementVersion()

	c.AddDomainEvent(NewCustomerUpdatedEvent(c))

	return nil
}

// UpdateAddress updates the customer's address details
func (c *Customer) UpdateAddress(address, city, postalCode, country string) {
	c.Address = address
	c.City = city
	c.PostalCode = postalCode
	c.Country = country
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
}

func validateCustomerName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Customer name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Customer name cannot exceed 200 characters")
	}
	return nil
}
