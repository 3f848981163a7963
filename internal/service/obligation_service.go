package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/metrics"
	"github.com/mmynk/cashflow/internal/models"
	"github.com/mmynk/cashflow/internal/storage"
	"github.com/mmynk/cashflow/internal/wire"
)

type AddObligationsRequest struct {
	Obligations []wire.ObligationRecord `json:"obligations"`
	GroupID     string                  `json:"group_id,omitempty"`
}

type AddObligationsResponse struct {
	IDs         []string                `json:"ids"`
	Obligations []wire.ObligationRecord `json:"obligations"`
}

type ListObligationsRequest struct {
	GroupID string `json:"group_id,omitempty"`
}

type ListObligationsResponse struct {
	Obligations []wire.ObligationRecord `json:"obligations"`
}

type DeleteObligationRequest struct {
	ID string `json:"id"`
}

type DeleteObligationResponse struct{}

type SplitBillRequest struct {
	Bill    wire.BillRecord `json:"bill"`
	GroupID string          `json:"group_id,omitempty"`
}

// ObligationService records obligations in the ledger.
type ObligationService struct {
	store   storage.Store
	places  int32
	metrics *metrics.Metrics
}

// NewObligationService creates a new ObligationService with the given storage backend.
// places is the currency precision used when splitting bills.
func NewObligationService(store storage.Store, places int32, m *metrics.Metrics) *ObligationService {
	return &ObligationService{store: store, places: places, metrics: m}
}

// Handler returns the path prefix and handler serving the service.
func (s *ObligationService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	return serviceHandler(ObligationServiceName, map[string]*connect.Handler{
		ObligationServiceAddObligationsProcedure:   unary(ObligationServiceAddObligationsProcedure, s.AddObligations, opts...),
		ObligationServiceListObligationsProcedure:  unary(ObligationServiceListObligationsProcedure, s.ListObligations, opts...),
		ObligationServiceDeleteObligationProcedure: unary(ObligationServiceDeleteObligationProcedure, s.DeleteObligation, opts...),
		ObligationServiceSplitBillProcedure:        unary(ObligationServiceSplitBillProcedure, s.SplitBill, opts...),
	})
}

// AddObligations validates and records a batch of obligations. The batch is
// all-or-nothing.
func (s *ObligationService) AddObligations(ctx context.Context, req *AddObligationsRequest) (*AddObligationsResponse, error) {
	userID, err := requireUser(ctx, ObligationServiceAddObligationsProcedure)
	if err != nil {
		return nil, err
	}

	slog.Info("AddObligations request received",
		"count", len(req.Obligations),
		"group_id", req.GroupID,
		"user_id", userID,
	)

	if len(req.Obligations) == 0 {
		return nil, invalidArgument("no obligations provided")
	}

	obligations, err := wire.Obligations(req.Obligations)
	if err != nil {
		slog.Warn("AddObligations rejected", "error", err)
		return nil, toConnectError(err)
	}

	stored, err := s.Record(ctx, obligations, req.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return recordedResponse(stored), nil
}

// Record persists validated obligations, optionally scoped to a group whose
// member list grows to include every party.
func (s *ObligationService) Record(ctx context.Context, obligations []calculator.Obligation, groupID, createdBy string) ([]*models.Obligation, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID != "" {
		if _, err := s.store.GetGroup(ctx, groupID); err != nil {
			slog.Error("Record failed - group not found", "group_id", groupID, "error", err)
			return nil, err
		}
	}

	stored := make([]*models.Obligation, len(obligations))
	for i, o := range obligations {
		stored[i] = wire.Model(o, groupID, createdBy)
	}

	if err := s.store.CreateObligations(ctx, stored); err != nil {
		slog.Error("Record failed", "error", err)
		return nil, err
	}
	s.metrics.AddObligations(len(stored))

	s.autoAddPartiesToGroup(ctx, groupID, obligations)

	slog.Info("Obligations recorded", "count", len(stored), "group_id", groupID)
	return stored, nil
}

// ListObligations returns the recorded obligations, oldest first.
func (s *ObligationService) ListObligations(ctx context.Context, req *ListObligationsRequest) (*ListObligationsResponse, error) {
	slog.Info("ListObligations request received", "group_id", req.GroupID)

	stored, err := s.store.ListObligations(ctx, req.GroupID)
	if err != nil {
		slog.Error("ListObligations failed", "error", err)
		return nil, toConnectError(err)
	}

	records := make([]wire.ObligationRecord, len(stored))
	for i, m := range stored {
		records[i] = wire.Record(m)
	}

	slog.Info("ListObligations successful", "count", len(records))
	return &ListObligationsResponse{Obligations: records}, nil
}

// DeleteObligation removes an obligation. Only its creator may delete an
// obligation that records one.
func (s *ObligationService) DeleteObligation(ctx context.Context, req *DeleteObligationRequest) (*DeleteObligationResponse, error) {
	userID, err := requireUser(ctx, ObligationServiceDeleteObligationProcedure)
	if err != nil {
		return nil, err
	}

	slog.Info("DeleteObligation request received", "id", req.ID, "user_id", userID)

	if req.ID == "" {
		return nil, invalidArgument("id required")
	}

	existing, err := s.store.GetObligation(ctx, req.ID)
	if err != nil {
		slog.Error("DeleteObligation failed", "id", req.ID, "error", err)
		return nil, toConnectError(err)
	}
	if existing.CreatedBy != "" && existing.CreatedBy != userID {
		return nil, connect.NewError(connect.CodePermissionDenied,
			fmt.Errorf("obligation %s was recorded by another user", req.ID))
	}

	if err := s.store.DeleteObligation(ctx, req.ID); err != nil {
		slog.Error("DeleteObligation failed", "id", req.ID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Obligation deleted", "id", req.ID)
	return &DeleteObligationResponse{}, nil
}

// SplitBill splits a shared bill and records what each participant owes the
// payer.
func (s *ObligationService) SplitBill(ctx context.Context, req *SplitBillRequest) (*AddObligationsResponse, error) {
	userID, err := requireUser(ctx, ObligationServiceSplitBillProcedure)
	if err != nil {
		return nil, err
	}

	slog.Info("SplitBill request received",
		"payer", req.Bill.Payer,
		"participants_count", len(req.Bill.Participants),
		"items_count", len(req.Bill.Items),
	)

	bill, err := req.Bill.Bill()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	obligations, err := calculator.SplitBill(bill, s.places)
	if err != nil {
		slog.Warn("SplitBill rejected", "error", err)
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	for i, o := range obligations {
		if err := calculator.Validate(o); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("share %d: %w", i, err))
		}
	}

	if len(obligations) == 0 {
		return recordedResponse(nil), nil
	}

	stored, err := s.Record(ctx, obligations, req.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return recordedResponse(stored), nil
}

// autoAddPartiesToGroup adds any debtor or creditor not already in the group.
func (s *ObligationService) autoAddPartiesToGroup(ctx context.Context, groupID string, obligations []calculator.Obligation) {
	if groupID == "" {
		return
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		slog.Warn("autoAddPartiesToGroup: failed to get group", "group_id", groupID, "error", err)
		return
	}

	parties := make([]string, 0, 2*len(obligations))
	for _, o := range obligations {
		parties = append(parties, o.Debtor, o.Creditor)
	}

	newMembers := findNewMembers(parties, group.Members)
	if len(newMembers) == 0 {
		return
	}

	if err := s.store.AddGroupMembers(ctx, groupID, newMembers); err != nil {
		slog.Error("autoAddPartiesToGroup: failed to add members", "group_id", groupID, "error", err)
		return
	}
	slog.Info("Auto-added parties to group", "group_id", groupID, "new_members", newMembers)
}

// findNewMembers returns the parties not already in existingMembers, once each.
func findNewMembers(parties, existingMembers []string) []string {
	seen := make(map[string]bool, len(existingMembers)+len(parties))
	for _, m := range existingMembers {
		seen[m] = true
	}
	var newOnes []string
	for _, p := range parties {
		if !seen[p] {
			seen[p] = true
			newOnes = append(newOnes, p)
		}
	}
	return newOnes
}

func recordedResponse(stored []*models.Obligation) *AddObligationsResponse {
	resp := &AddObligationsResponse{
		IDs:         make([]string, len(stored)),
		Obligations: make([]wire.ObligationRecord, len(stored)),
	}
	for i, m := range stored {
		resp.IDs[i] = m.ID
		resp.Obligations[i] = wire.Record(m)
	}
	return resp
}
