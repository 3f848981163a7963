// Package wire converts obligation and settlement records between their
// transport shape (loosely typed JSON objects and protobuf Structs) and the
// calculator's typed values.
//
// Field names follow the original HTTP API: a record's sender owes its
// receiver amount.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashflow/internal/calculator"
)

// ObligationRecord is one obligation as submitted or listed over the wire.
type ObligationRecord struct {
	ID           string              `json:"id,omitempty"`
	GroupID      string              `json:"group_id,omitempty"`
	Sender       string              `json:"sender"`
	Receiver     string              `json:"receiver"`
	Amount       decimal.Decimal     `json:"amount"`
	Timestamp    string              `json:"timestamp,omitempty"`
	DueDate      string              `json:"due_date,omitempty"`
	InterestRate decimal.NullDecimal `json:"interest_rate"`
	Penalty      decimal.NullDecimal `json:"penalty"`
	PenaltyKind  string              `json:"penalty_kind,omitempty"`
	CreatedBy    string              `json:"created_by,omitempty"`
}

// SettlementRecord is one payment in a settlement result.
type SettlementRecord struct {
	Sender   string      `json:"sender"`
	Receiver string      `json:"receiver"`
	Amount   json.Number `json:"amount"`
}

// Obligation validates r and converts it into a calculator obligation.
// index is the record's position in its batch and is carried by the error.
func (r ObligationRecord) Obligation(index int) (calculator.Obligation, error) {
	o := calculator.Obligation{
		Debtor:      r.Sender,
		Creditor:    r.Receiver,
		Principal:   r.Amount,
		PenaltyKind: calculator.PenaltyKind(strings.ToLower(r.PenaltyKind)),
	}
	if r.InterestRate.Valid {
		o.InterestRate = r.InterestRate.Decimal
	}
	if r.Penalty.Valid {
		o.Penalty = r.Penalty.Decimal
	}

	if r.DueDate != "" {
		due, err := ParseDate(r.DueDate)
		if err != nil {
			return calculator.Obligation{}, calculator.NewInvalidObligation(index, "due_date", err.Error())
		}
		o.DueDate = &due
	}
	if r.Timestamp != "" {
		ts, err := ParseDate(r.Timestamp)
		if err != nil {
			return calculator.Obligation{}, calculator.NewInvalidObligation(index, "timestamp", err.Error())
		}
		o.Timestamp = &ts
	}

	if err := calculator.Validate(o); err != nil {
		var invalid *calculator.InvalidObligationError
		if errors.As(err, &invalid) {
			return calculator.Obligation{}, calculator.NewInvalidObligation(index, invalid.Field, invalid.Reason)
		}
		return calculator.Obligation{}, err
	}

	return o, nil
}

// Obligations converts a batch of records, failing on the first invalid one.
func Obligations(records []ObligationRecord) ([]calculator.Obligation, error) {
	obligations := make([]calculator.Obligation, len(records))
	for i, r := range records {
		o, err := r.Obligation(i)
		if err != nil {
			return nil, err
		}
		obligations[i] = o
	}
	return obligations, nil
}

// FromObligation converts a calculator obligation into its wire record.
func FromObligation(o calculator.Obligation) ObligationRecord {
	r := ObligationRecord{
		Sender:      o.Debtor,
		Receiver:    o.Creditor,
		Amount:      o.Principal,
		PenaltyKind: string(o.PenaltyKind),
	}
	if o.DueDate != nil {
		r.DueDate = o.DueDate.Format(time.DateOnly)
	}
	if o.Timestamp != nil {
		r.Timestamp = o.Timestamp.UTC().Format(time.RFC3339)
	}
	if !o.InterestRate.IsZero() {
		r.InterestRate = decimal.NewNullDecimal(o.InterestRate)
	}
	if !o.Penalty.IsZero() {
		r.Penalty = decimal.NewNullDecimal(o.Penalty)
	}
	return r
}

// Settlements converts settlements into records with amounts fixed to
// places decimals.
func Settlements(settlements []calculator.Settlement, places int32) []SettlementRecord {
	records := make([]SettlementRecord, len(settlements))
	for i, s := range settlements {
		records[i] = SettlementRecord{
			Sender:   s.Payer,
			Receiver: s.Payee,
			Amount:   json.Number(s.Amount.StringFixed(places)),
		}
	}
	return records
}

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q, want YYYY-MM-DD or RFC3339", s)
}
