package wire

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashflow/internal/calculator"
)

// ItemRecord is one line item of a shared bill.
type ItemRecord struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	AssignedTo  []string        `json:"assigned_to,omitempty"`
}

// BillRecord is a shared expense over the wire. Subtotal defaults to the
// sum of the items, or to the total when there are none.
type BillRecord struct {
	Payer        string              `json:"payer"`
	Total        decimal.Decimal     `json:"total"`
	Subtotal     decimal.NullDecimal `json:"subtotal"`
	Participants []string            `json:"participants"`
	Items        []ItemRecord        `json:"items,omitempty"`
	Timestamp    string              `json:"timestamp,omitempty"`
	DueDate      string              `json:"due_date,omitempty"`
	InterestRate decimal.NullDecimal `json:"interest_rate"`
	Penalty      decimal.NullDecimal `json:"penalty"`
	PenaltyKind  string              `json:"penalty_kind,omitempty"`
}

// Bill converts b into a calculator bill.
func (b BillRecord) Bill() (calculator.Bill, error) {
	bill := calculator.Bill{
		Payer:        strings.TrimSpace(b.Payer),
		Total:        b.Total,
		Participants: b.Participants,
		PenaltyKind:  calculator.PenaltyKind(strings.ToLower(b.PenaltyKind)),
	}

	switch {
	case b.Subtotal.Valid:
		bill.Subtotal = b.Subtotal.Decimal
	case len(b.Items) > 0:
		for _, item := range b.Items {
			bill.Subtotal = bill.Subtotal.Add(item.Amount)
		}
	default:
		bill.Subtotal = b.Total
	}

	bill.Items = make([]calculator.Item, len(b.Items))
	for i, item := range b.Items {
		bill.Items[i] = calculator.Item{
			Description: item.Description,
			Amount:      item.Amount,
			AssignedTo:  item.AssignedTo,
		}
	}

	if b.InterestRate.Valid {
		bill.InterestRate = b.InterestRate.Decimal
	}
	if b.Penalty.Valid {
		bill.Penalty = b.Penalty.Decimal
	}
	if b.DueDate != "" {
		due, err := ParseDate(b.DueDate)
		if err != nil {
			return calculator.Bill{}, fmt.Errorf("due_date: %w", err)
		}
		bill.DueDate = &due
	}
	if b.Timestamp != "" {
		ts, err := ParseDate(b.Timestamp)
		if err != nil {
			return calculator.Bill{}, fmt.Errorf("timestamp: %w", err)
		}
		bill.Timestamp = &ts
	}

	return bill, nil
}
