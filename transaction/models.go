// Package transaction defines the append-only ledger entries posted
// against an outlet's business day.
package transaction

import (
	"time"

	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/types"
)

// Type is the closed set of entry directions.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	return t == TypeIncome || t == TypeExpense
}

// PaymentMode is the closed set of settlement channels.
type PaymentMode string

const (
	ModeCash   PaymentMode = "cash"
	ModeUPI    PaymentMode = "upi"
	ModeCard   PaymentMode = "card"
	ModeCredit PaymentMode = "credit"
)

// PaymentModes lists every known mode.
var PaymentModes = []PaymentMode{ModeCash, ModeUPI, ModeCard, ModeCredit}

// IsValid reports whether m is a known mode.
func (m PaymentMode) IsValid() bool {
	for _, known := range PaymentModes {
		if m == known {
			return true
		}
	}
	return false
}

// Tallied reports whether the mode is physically counted at day end.
// Only cash and UPI balances are reconciled.
func (m PaymentMode) Tallied() bool {
	return m == ModeCash || m == ModeUPI
}

// AccountType classifies a ledger account for trial-balance purposes.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountIncome    AccountType = "income"
	AccountExpense   AccountType = "expense"
	AccountEquity    AccountType = "equity"
)

// IsValid reports whether a is a known account type.
func (a AccountType) IsValid() bool {
	switch a {
	case AccountAsset, AccountLiability, AccountIncome, AccountExpense, AccountEquity:
		return true
	}
	return false
}

// DebitNormal reports whether the account type increases on debit.
func (a AccountType) DebitNormal() bool {
	return a == AccountAsset || a == AccountExpense
}

// Account maps a transaction onto a chart-of-accounts line.
type Account struct {
	Code string      `json:"code"`
	Type AccountType `json:"type"`
}

// Mapped reports whether the account names a real ledger line.
func (a *Account) Mapped() bool {
	return a != nil && a.Code != "" && a.Type.IsValid()
}

// Transaction is an immutable ledger entry. Corrections are new, offsetting
// transactions; nothing here is ever updated.
type Transaction struct {
	ID             id.TransactionID `json:"id"`
	OutletID       string           `json:"outlet_id"`
	Date           time.Time        `json:"business_date"`
	DayID          id.DayID         `json:"daily_record_id"`
	Type           Type             `json:"type"`
	Category       string           `json:"category"`
	PaymentMode    PaymentMode      `json:"payment_mode"`
	Amount         types.Money      `json:"amount"`
	Account        *Account         `json:"account,omitempty"`
	Note           string           `json:"note,omitempty"`
	CreatedBy      string           `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	IsManual       bool             `json:"is_manual"`
	IsReversal     bool             `json:"is_reversal"`
	IdempotencyKey string           `json:"idempotency_key"`
}

// IsSale reports whether the entry is ordinary, non-reversal income.
func (t *Transaction) IsSale() bool {
	return t.Type == TypeIncome && !t.IsReversal
}

// ListOpts filters transaction queries. From and To are inclusive business
// dates; zero values leave that side open.
type ListOpts struct {
	OutletID string
	DayID    id.DayID
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Matches reports whether t satisfies the filter.
func (o ListOpts) Matches(t *Transaction) bool {
	if o.OutletID != "" && t.OutletID != o.OutletID {
		return false
	}
	if !o.DayID.IsNil() && t.DayID.String() != o.DayID.String() {
		return false
	}
	if !o.From.IsZero() && t.Date.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && t.Date.After(o.To) {
		return false
	}
	return true
}
