package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/cashflow/internal/models"
	"github.com/mmynk/cashflow/internal/storage"
)

// GroupRecord is a group as sent over the wire.
type GroupRecord struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"created_at"`
}

type CreateGroupRequest struct {
	Name    string   `json:"name,omitempty"`
	Members []string `json:"members,omitempty"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GroupResponse struct {
	Group GroupRecord `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []GroupRecord `json:"groups"`
}

// GroupService manages the groups obligations can be scoped to.
type GroupService struct {
	store storage.Store
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store) *GroupService {
	return &GroupService{store: store}
}

// Handler returns the path prefix and handler serving the service.
func (s *GroupService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	return serviceHandler(GroupServiceName, map[string]*connect.Handler{
		GroupServiceCreateGroupProcedure: unary(GroupServiceCreateGroupProcedure, s.CreateGroup, opts...),
		GroupServiceGetGroupProcedure:    unary(GroupServiceGetGroupProcedure, s.GetGroup, opts...),
		GroupServiceListGroupsProcedure:  unary(GroupServiceListGroupsProcedure, s.ListGroups, opts...),
	})
}

// CreateGroup creates a new group. An empty name is generated from the
// members.
func (s *GroupService) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*GroupResponse, error) {
	slog.Info("CreateGroup request received",
		"name", req.Name,
		"members_count", len(req.Members),
	)

	members := make([]string, 0, len(req.Members))
	for _, m := range req.Members {
		if m = strings.TrimSpace(m); m != "" {
			members = append(members, m)
		}
	}

	group := &models.Group{
		Name:    strings.TrimSpace(req.Name),
		Members: members,
	}

	// Save to storage (generates ID, name and CreatedAt)
	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Group created", "group_id", group.ID)
	return &GroupResponse{Group: toGroupRecord(group)}, nil
}

// GetGroup retrieves a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, req *GetGroupRequest) (*GroupResponse, error) {
	slog.Info("GetGroup request received", "group_id", req.GroupID)

	if req.GroupID == "" {
		return nil, invalidArgument("group_id required")
	}

	group, err := s.store.GetGroup(ctx, req.GroupID)
	if err != nil {
		slog.Error("GetGroup failed", "group_id", req.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("GetGroup successful", "group_id", group.ID, "name", group.Name)
	return &GroupResponse{Group: toGroupRecord(group)}, nil
}

// ListGroups retrieves all groups.
func (s *GroupService) ListGroups(ctx context.Context, _ *ListGroupsRequest) (*ListGroupsResponse, error) {
	slog.Info("ListGroups request received")

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		slog.Error("ListGroups failed", "error", err)
		return nil, toConnectError(err)
	}

	records := make([]GroupRecord, len(groups))
	for i, group := range groups {
		records[i] = toGroupRecord(group)
	}

	slog.Info("ListGroups successful", "count", len(groups))
	return &ListGroupsResponse{Groups: records}, nil
}

func toGroupRecord(group *models.Group) GroupRecord {
	members := group.Members
	if members == nil {
		members = []string{}
	}
	return GroupRecord{
		ID:        group.ID,
		Name:      group.Name,
		Members:   members,
		CreatedAt: group.CreatedAt,
	}
}
