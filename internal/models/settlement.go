package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRun is an archived settlement result. Runs are an audit trail:
// recording one does not change or remove the obligations it was computed
// from.
type SettlementRun struct {
	// ID is the unique identifier for the run (UUID format).
	ID string

	// GroupID is the group that was settled; empty for the global ledger.
	GroupID string

	// EvaluationDate is the date interest and penalties were computed for.
	EvaluationDate time.Time

	// ObligationCount is the number of obligations in the snapshot.
	ObligationCount int

	// Total is the sum of all transfer amounts.
	Total decimal.Decimal

	// Transfers are the payments that clear every balance, in order.
	Transfers []Transfer

	// CreatedAt is the Unix timestamp when the run was recorded.
	CreatedAt int64

	// CreatedBy is the user ID who requested the run, if any.
	CreatedBy string
}

// Transfer is one payment of a settlement run.
type Transfer struct {
	// Payer is the party who pays (debtor settling up).
	Payer string

	// Payee is the party who receives (creditor being paid).
	Payee string

	Amount decimal.Decimal
}
