package models

import "time"

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe   = "stripe"
	PaymentProviderPaystack = "paystack"
	PaymentProviderPayPal   = "paypal"
)

const (
	CreditStateUnset   = "unset"
	CreditStateGranted = "granted"
)

// LedgerRecord marks a purchase reference as credited. A row is created
// lazily on the first verified successful payment event for a reference;
// the unique index on client_reference_id is what makes the grant
// exactly-once under concurrent webhook deliveries. Rows are never
// deleted or downgraded by the payment subsystem.
type LedgerRecord struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	ClientReferenceID     string    `gorm:"type:varchar(191);not null;index:ux_ledger_records_reference,unique" json:"client_reference_id"`
	CreditState           string    `gorm:"type:varchar(16);not null;default:'granted'" json:"credit_state"`
	Provider              string    `gorm:"type:varchar(20);not null;index" json:"provider"`
	ProviderTransactionID string    `gorm:"type:varchar(191);not null;default:''" json:"provider_transaction_id"`
	FirstAppliedAt        time.Time `gorm:"type:timestamp;not null" json:"first_applied_at"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
