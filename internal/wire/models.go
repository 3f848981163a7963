package wire

import (
	"encoding/json"
	"time"

	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/models"
)

// Model converts a validated obligation into its stored form. A missing
// timestamp leaves RecordedAt zero so the store stamps it.
func Model(o calculator.Obligation, groupID, createdBy string) *models.Obligation {
	m := &models.Obligation{
		GroupID:      groupID,
		Debtor:       o.Debtor,
		Creditor:     o.Creditor,
		Principal:    o.Principal,
		InterestRate: o.InterestRate,
		Penalty:      o.Penalty,
		PenaltyKind:  string(o.PenaltyKind),
		CreatedBy:    createdBy,
	}
	if o.DueDate != nil {
		due := calculator.CivilDate(*o.DueDate)
		m.DueDate = &due
	}
	if o.Timestamp != nil {
		m.RecordedAt = o.Timestamp.Unix()
	}
	return m
}

// FromModel converts a stored obligation back into a calculator obligation.
func FromModel(m *models.Obligation) calculator.Obligation {
	ts := time.Unix(m.RecordedAt, 0).UTC()
	return calculator.Obligation{
		Debtor:       m.Debtor,
		Creditor:     m.Creditor,
		Principal:    m.Principal,
		DueDate:      m.DueDate,
		InterestRate: m.InterestRate,
		Penalty:      m.Penalty,
		PenaltyKind:  calculator.PenaltyKind(m.PenaltyKind),
		Timestamp:    &ts,
	}
}

// FromModels converts a stored snapshot for a settlement run.
func FromModels(stored []*models.Obligation) []calculator.Obligation {
	obligations := make([]calculator.Obligation, len(stored))
	for i, m := range stored {
		obligations[i] = FromModel(m)
	}
	return obligations
}

// Record converts a stored obligation into its wire record.
func Record(m *models.Obligation) ObligationRecord {
	r := FromObligation(FromModel(m))
	r.ID = m.ID
	r.GroupID = m.GroupID
	r.CreatedBy = m.CreatedBy
	return r
}

// RunRecord is an archived settlement run as listed over the wire.
type RunRecord struct {
	ID              string             `json:"id"`
	GroupID         string             `json:"group_id,omitempty"`
	EvaluationDate  string             `json:"evaluation_date"`
	ObligationCount int                `json:"obligation_count"`
	Settlements     []SettlementRecord `json:"settlements"`
	Total           json.Number        `json:"total"`
	CreatedAt       string             `json:"created_at"`
	CreatedBy       string             `json:"created_by,omitempty"`
}

// Run converts an archived run into its wire record.
func Run(run *models.SettlementRun, places int32) RunRecord {
	settlements := make([]SettlementRecord, len(run.Transfers))
	for i, t := range run.Transfers {
		settlements[i] = SettlementRecord{
			Sender:   t.Payer,
			Receiver: t.Payee,
			Amount:   json.Number(t.Amount.StringFixed(places)),
		}
	}
	return RunRecord{
		ID:              run.ID,
		GroupID:         run.GroupID,
		EvaluationDate:  run.EvaluationDate.Format(time.DateOnly),
		ObligationCount: run.ObligationCount,
		Settlements:     settlements,
		Total:           json.Number(run.Total.StringFixed(places)),
		CreatedAt:       time.Unix(run.CreatedAt, 0).UTC().Format(time.RFC3339),
		CreatedBy:       run.CreatedBy,
	}
}

// NewRun builds the archived form of a settlement result.
func NewRun(r *calculator.Result, groupID, createdBy string, obligationCount int) *models.SettlementRun {
	transfers := make([]models.Transfer, len(r.Settlements))
	for i, s := range r.Settlements {
		transfers[i] = models.Transfer{Payer: s.Payer, Payee: s.Payee, Amount: s.Amount}
	}
	return &models.SettlementRun{
		GroupID:         groupID,
		EvaluationDate:  r.EvaluationDate,
		ObligationCount: obligationCount,
		Total:           r.Total,
		Transfers:       transfers,
		CreatedBy:       createdBy,
	}
}
