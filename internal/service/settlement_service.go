package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/metrics"
	"github.com/mmynk/cashflow/internal/middleware"
	"github.com/mmynk/cashflow/internal/storage"
	"github.com/mmynk/cashflow/internal/wire"
)

// MaxProjectionDates bounds the evaluation dates of one Project call.
const MaxProjectionDates = 366

type SettleRequest struct {
	Obligations    []wire.ObligationRecord `json:"obligations"`
	EvaluationDate string                  `json:"evaluation_date,omitempty"`
}

type SettleGroupRequest struct {
	// GroupID selects the group to settle; empty settles the whole ledger.
	GroupID        string `json:"group_id,omitempty"`
	EvaluationDate string `json:"evaluation_date,omitempty"`
	// Record archives the run.
	Record bool `json:"record,omitempty"`
}

type ProjectRequest struct {
	Obligations     []wire.ObligationRecord `json:"obligations"`
	EvaluationDates []string                `json:"evaluation_dates"`
}

type ProjectResponse struct {
	Projections []wire.SettleResult `json:"projections"`
}

type ListRunsRequest struct {
	GroupID string `json:"group_id,omitempty"`
}

type ListRunsResponse struct {
	Runs []wire.RunRecord `json:"runs"`
}

// SettlementService computes minimal settlements.
type SettlementService struct {
	store   storage.Store
	engine  *calculator.Engine
	metrics *metrics.Metrics
}

// NewSettlementService creates a SettlementService running engine against
// the ledger in store.
func NewSettlementService(store storage.Store, engine *calculator.Engine, m *metrics.Metrics) *SettlementService {
	return &SettlementService{store: store, engine: engine, metrics: m}
}

// Handler returns the path prefix and handler serving the service.
func (s *SettlementService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	return serviceHandler(SettlementServiceName, map[string]*connect.Handler{
		SettlementServiceSettleProcedure:      unary(SettlementServiceSettleProcedure, s.Settle, opts...),
		SettlementServiceSettleGroupProcedure: unary(SettlementServiceSettleGroupProcedure, s.SettleGroup, opts...),
		SettlementServiceProjectProcedure:     unary(SettlementServiceProjectProcedure, s.Project, opts...),
		SettlementServiceListRunsProcedure:    unary(SettlementServiceListRunsProcedure, s.ListRuns, opts...),
	})
}

// Places is the currency precision of every result.
func (s *SettlementService) Places() int32 {
	return s.engine.Places()
}

// Settle settles the obligations in the request without touching the ledger.
func (s *SettlementService) Settle(ctx context.Context, req *SettleRequest) (*wire.SettleResult, error) {
	slog.Info("Settle request received",
		"count", len(req.Obligations),
		"evaluation_date", req.EvaluationDate,
	)

	date, err := parseEvaluationDate(req.EvaluationDate)
	if err != nil {
		return nil, err
	}

	obligations, err := wire.Obligations(req.Obligations)
	if err != nil {
		slog.Warn("Settle rejected", "error", err)
		return nil, toConnectError(err)
	}

	result, err := s.Run(obligations, date)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := wire.Result(result, s.Places())
	return &out, nil
}

// SettleGroup settles a snapshot of the stored ledger, or of one group, and
// optionally archives the run. Obligations stay in the ledger either way.
func (s *SettlementService) SettleGroup(ctx context.Context, req *SettleGroupRequest) (*wire.SettleResult, error) {
	slog.Info("SettleGroup request received",
		"group_id", req.GroupID,
		"evaluation_date", req.EvaluationDate,
		"record", req.Record,
	)

	date, err := parseEvaluationDate(req.EvaluationDate)
	if err != nil {
		return nil, err
	}

	if req.GroupID != "" {
		if _, err := s.store.GetGroup(ctx, req.GroupID); err != nil {
			slog.Error("SettleGroup failed - group not found", "group_id", req.GroupID, "error", err)
			return nil, toConnectError(err)
		}
	}

	stored, err := s.store.ListObligations(ctx, req.GroupID)
	if err != nil {
		slog.Error("SettleGroup failed - could not list obligations", "group_id", req.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	result, err := s.Run(wire.FromModels(stored), date)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := wire.Result(result, s.Places())
	if req.Record {
		run := wire.NewRun(result, req.GroupID, middleware.GetUserID(ctx), len(stored))
		if err := s.store.CreateSettlementRun(ctx, run); err != nil {
			slog.Error("SettleGroup failed - could not archive run", "group_id", req.GroupID, "error", err)
			return nil, toConnectError(err)
		}
		out.RunID = run.ID
		slog.Info("Settlement run archived", "run_id", run.ID, "group_id", req.GroupID)
	}

	return &out, nil
}

// Project settles the same obligations at several evaluation dates, showing
// how interest and penalties change the transfers over time.
func (s *SettlementService) Project(ctx context.Context, req *ProjectRequest) (*ProjectResponse, error) {
	slog.Info("Project request received",
		"count", len(req.Obligations),
		"dates", len(req.EvaluationDates),
	)

	if len(req.EvaluationDates) == 0 {
		return nil, invalidArgument("evaluation_dates required")
	}
	if len(req.EvaluationDates) > MaxProjectionDates {
		return nil, invalidArgument(fmt.Sprintf("at most %d evaluation_dates allowed", MaxProjectionDates))
	}

	dates := make([]time.Time, len(req.EvaluationDates))
	for i, d := range req.EvaluationDates {
		date, err := wire.ParseDate(d)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("evaluation_dates[%d]: %w", i, err))
		}
		dates[i] = date
	}

	obligations, err := wire.Obligations(req.Obligations)
	if err != nil {
		return nil, toConnectError(err)
	}

	start := time.Now()
	results, err := s.engine.Project(ctx, obligations, dates)
	if err != nil {
		s.metrics.ObserveRun(outcome(err), 0, time.Since(start))
		slog.Error("Project failed", "error", err)
		return nil, toConnectError(err)
	}

	resp := &ProjectResponse{Projections: make([]wire.SettleResult, len(results))}
	for i, r := range results {
		s.metrics.ObserveRun(metrics.OutcomeOK, len(r.Settlements), time.Since(start)/time.Duration(len(results)))
		resp.Projections[i] = wire.Result(r, s.Places())
	}
	return resp, nil
}

// ListRuns lists archived runs, newest first.
func (s *SettlementService) ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error) {
	slog.Info("ListRuns request received", "group_id", req.GroupID)

	runs, err := s.store.ListSettlementRuns(ctx, req.GroupID)
	if err != nil {
		slog.Error("ListRuns failed", "error", err)
		return nil, toConnectError(err)
	}

	resp := &ListRunsResponse{Runs: make([]wire.RunRecord, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = wire.Run(run, s.Places())
	}
	return resp, nil
}

// Run settles obligations once and records the outcome.
func (s *SettlementService) Run(obligations []calculator.Obligation, date time.Time) (*calculator.Result, error) {
	start := time.Now()
	result, err := s.engine.Settle(obligations, date)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveRun(outcome(err), 0, elapsed)
		if errors.Is(err, calculator.ErrInternalInconsistency) {
			slog.Error("Settlement run failed", "error", err)
		} else {
			slog.Warn("Settlement run rejected", "error", err)
		}
		return nil, err
	}

	s.metrics.ObserveRun(metrics.OutcomeOK, len(result.Settlements), elapsed)
	slog.Info("Settlement run successful",
		"obligations", len(obligations),
		"transfers", len(result.Settlements),
		"total", result.Total.String(),
	)
	return result, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, calculator.ErrInvalidObligation):
		return metrics.OutcomeInvalid
	case errors.Is(err, calculator.ErrInternalInconsistency):
		return metrics.OutcomeInconsistent
	default:
		return metrics.OutcomeError
	}
}

// parseEvaluationDate parses an optional date; empty means today.
func parseEvaluationDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	date, err := wire.ParseDate(s)
	if err != nil {
		return time.Time{}, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("evaluation_date: %w", err))
	}
	return date, nil
}
