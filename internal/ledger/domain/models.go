package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnauthorized indicates the stored token was rejected by the remote
// system. Token refresh is owned by an external collaborator; operators
// reconnect through it.
var ErrUnauthorized = errors.New("ledger_unauthorized")

// ErrNotConnected indicates no token row exists yet.
var ErrNotConnected = errors.New("ledger_not_connected")

// Fault is a business-rule rejection from the accounting service, e.g. a
// bad customer reference. Distinct from TransportError: the request
// reached the remote system and was refused.
type Fault struct {
	Code    string
	Message string
	Detail  string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("ledger fault %s: %s", f.Code, f.Message)
}

// TransportError is a network-level failure: the request may never have
// reached the accounting service. Operators decide on manual retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ledger transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Customer is a billable entity in the accounting service.
type Customer struct {
	ID          string `json:"Id"`
	DisplayName string `json:"DisplayName"`
}

// InvoiceLine is one priced line on an invoice request. Amount is the
// line total; the protocol wants totals alongside unit price and
// quantity.
type InvoiceLine struct {
	Description string
	Amount      float64
	ItemRef     string
	Quantity    float64
	UnitPrice   float64
}

// InvoiceRequest creates one invoice document for one customer.
type InvoiceRequest struct {
	CustomerID string
	TxnDate    time.Time
	Lines      []InvoiceLine
}

// InvoiceResponse is the assigned document identity on success.
type InvoiceResponse struct {
	InvoiceID string
	DocNumber string
}

// Token is the stored credential for the accounting service connection.
type Token struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	AccessToken string    `gorm:"not null" json:"-"`
	RealmID     string    `gorm:"column:realm_id;not null" json:"realm_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Token) TableName() string { return "ledger_tokens" }

// TokenStore reads the stored connection credential.
type TokenStore interface {
	Current(ctx context.Context) (Token, error)
}

// Client is the accounting-service API surface the posting run submits to.
type Client interface {
	// FindCustomer searches by exact display name. A nil customer with a
	// nil error means no match.
	FindCustomer(ctx context.Context, displayName string) (*Customer, error)
	CreateInvoice(ctx context.Context, req InvoiceRequest) (InvoiceResponse, error)
	// Call performs one authenticated JSON request against the remote API
	// and decodes the response into out when non-nil.
	Call(ctx context.Context, method, path string, body, out any) error
}
