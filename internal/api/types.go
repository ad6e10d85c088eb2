// Package api is the HTTP client for the finance backend: movements, wallets,
// PIX keys and the payment gateway connection.
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet groups movements.
type Wallet struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
}

// PixKey is a bank-transfer key registered for a wallet.
type PixKey struct {
	ID       string `json:"id"`
	WalletID string `json:"wallet_id,omitempty"`
	Type     string `json:"type"` // cpf, cnpj, email, phone, random
	Key      string `json:"key"`
}

// PixKeyInput creates a PIX key.
type PixKeyInput struct {
	WalletID string `json:"wallet_id"`
	Type     string `json:"type"`
	Key      string `json:"key"`
}

// DuplicateCriteria are the key fields compared by the backend.
type DuplicateCriteria struct {
	WalletID         string          `json:"wallet_id"`
	CounterpartEmail string          `json:"counterpart_email,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
}

// DuplicateCandidate is an existing movement that looks like the new one.
type DuplicateCandidate struct {
	ID               string          `json:"id"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	CounterpartEmail string          `json:"counterpart_email,omitempty"`
	DueDate          string          `json:"due_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// RecurringInput is attached to recurring movements.
type RecurringInput struct {
	Interval         string `json:"interval"`
	DayOfMonth       int    `json:"day_of_month,omitempty"`
	SubscriptionName string `json:"subscription_name,omitempty"`
	DurationMonths   int    `json:"duration_months,omitempty"`
	FirstDueDate     string `json:"first_due_date"`
}

// InProgressInput lets the backend reconcile a debt that already has paid
// installments.
type InProgressInput struct {
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	TotalInstallments int             `json:"total_installments"`
	PaidInstallments  int             `json:"paid_installments"`
}

// MovementInput is the create-movement request body.
type MovementInput struct {
	WalletID           string           `json:"wallet_id"`
	Description        string           `json:"description"`
	TotalAmount        decimal.Decimal  `json:"total_amount"`
	Installments       int              `json:"installments"`
	DueDate            string           `json:"due_date,omitempty"`
	PaymentMethod      string           `json:"payment_method"`
	MovementType       string           `json:"movement_type"`
	GatewayPaymentType string           `json:"gateway_payment_type,omitempty"`
	PixKeyID           string           `json:"pix_key_id,omitempty"`
	DebtorEmail        string           `json:"debtor_email"`
	DebtorName         string           `json:"debtor_name,omitempty"`
	CreditorEmail      string           `json:"creditor_email"`
	CreditorName       string           `json:"creditor_name,omitempty"`
	Recurring          *RecurringInput  `json:"recurring,omitempty"`
	InProgress         *InProgressInput `json:"in_progress,omitempty"`
}

// Movement is a created movement.
type Movement struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GatewayStatus is the gateway account connection state.
type GatewayStatus struct {
	Connected bool `json:"connected"`
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Movements creates movements and checks for duplicates.
type Movements interface {
	CheckDuplicates(ctx context.Context, criteria DuplicateCriteria) ([]DuplicateCandidate, error)
	Create(ctx context.Context, in MovementInput, idempotencyKey string) (Movement, error)
}

// Wallets lists the user's wallets.
type Wallets interface {
	ListWallets(ctx context.Context) ([]Wallet, error)
}

// PixKeys lists and creates PIX keys. An empty walletID lists every key.
type PixKeys interface {
	ListPixKeys(ctx context.Context, walletID string) ([]PixKey, error)
	CreatePixKey(ctx context.Context, in PixKeyInput) (PixKey, error)
}

// Gateway reports the payment gateway connection and starts authorization.
type Gateway interface {
	ConnectionStatus(ctx context.Context) (GatewayStatus, error)
	AuthorizationURL(ctx context.Context) (string, error)
}
