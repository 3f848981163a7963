package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/service"
	"github.com/mmynk/cashflow/internal/wire"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	obligations *service.ObligationService
	settlements *service.SettlementService
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// decodeRecords reads a JSON array of obligation records.
func decodeRecords(w http.ResponseWriter, r *http.Request) ([]wire.ObligationRecord, bool) {
	var records []wire.ObligationRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&records); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return nil, false
	}
	return records, true
}

// --- Root ---

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cashflow API is running!"})
}

// --- AddTransactions ---

type addTransactionsResponse struct {
	Status string                  `json:"status"`
	Data   []wire.ObligationRecord `json:"data"`
}

func (h *Handlers) AddTransactions(w http.ResponseWriter, r *http.Request) {
	records, ok := decodeRecords(w, r)
	if !ok {
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "No transactions provided.")
		return
	}

	obligations, err := wire.Obligations(records)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	stored, err := h.obligations.Record(r.Context(), obligations, "", "")
	if err != nil {
		slog.Error("AddTransactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := make([]wire.ObligationRecord, len(stored))
	for i, m := range stored {
		data[i] = wire.Record(m)
	}
	writeJSON(w, http.StatusOK, addTransactionsResponse{Status: "success", Data: data})
}

// --- ListTransactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.obligations.ListObligations(r.Context(), &service.ListObligationsRequest{
		GroupID: r.URL.Query().Get("group_id"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp.Obligations)
}

// --- Settle ---

func (h *Handlers) Settle(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if s := r.URL.Query().Get("evaluation_date"); s != "" {
		var err error
		if date, err = wire.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "evaluation_date: "+err.Error())
			return
		}
	}

	records, ok := decodeRecords(w, r)
	if !ok {
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "No valid transactions provided.")
		return
	}

	obligations, err := wire.Obligations(records)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.settlements.Run(obligations, date)
	switch {
	case errors.Is(err, calculator.ErrInvalidObligation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, wire.Settlements(result.Settlements, h.settlements.Places()))
}
