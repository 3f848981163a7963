package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Obligation is a debt recorded in the store: Debtor owes Creditor Principal.
type Obligation struct {
	// ID is the unique identifier for the obligation (UUID format).
	ID string

	// GroupID optionally scopes the obligation to a group. Empty means the
	// obligation is only part of the global ledger.
	GroupID string

	Debtor    string
	Creditor  string
	Principal decimal.Decimal

	// DueDate is the calendar date the obligation falls due. Nil means due
	// immediately, with no interest or penalty.
	DueDate *time.Time

	// InterestRate is a simple daily rate applied once overdue.
	InterestRate decimal.Decimal

	// Penalty is a one-off surcharge applied once overdue, interpreted
	// according to PenaltyKind ("flat" or "rate").
	Penalty     decimal.Decimal
	PenaltyKind string

	// RecordedAt is the Unix timestamp when the obligation was submitted.
	RecordedAt int64

	// CreatedBy is the user ID that recorded the obligation, if any.
	CreatedBy string
}
