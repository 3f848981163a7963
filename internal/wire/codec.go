package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/cashflow/internal/calculator"
)

// SettleResult is the transport form of a calculator.Result.
type SettleResult struct {
	RunID          string                 `json:"run_id,omitempty"`
	EvaluationDate string                 `json:"evaluation_date"`
	Settlements    []SettlementRecord     `json:"settlements"`
	Balances       map[string]json.Number `json:"balances"`
	Total          json.Number            `json:"total"`
}

// Result converts a settlement run into its transport form.
func Result(r *calculator.Result, places int32) SettleResult {
	balances := make(map[string]json.Number, len(r.Balances))
	for _, b := range r.Balances {
		balances[b.Party] = json.Number(b.Amount.StringFixed(places))
	}
	return SettleResult{
		EvaluationDate: r.EvaluationDate.Format(time.DateOnly),
		Settlements:    Settlements(r.Settlements, places),
		Balances:       balances,
		Total:          json.Number(r.Total.StringFixed(places)),
	}
}

// ToStruct encodes v, which must marshal to a JSON object, as a protobuf
// Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return s, nil
}

// FromStruct decodes a protobuf Struct into v through its JSON form. A nil
// Struct decodes as an empty object.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to read struct: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
