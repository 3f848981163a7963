// Package service implements the cashflow Connect services.
//
// Messages travel as google.protobuf.Struct values whose fields mirror the
// JSON records of package wire, so any Connect, gRPC or gRPC-Web client can
// call the procedures below without generated stubs.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/cashflow/internal/auth"
	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/middleware"
	"github.com/mmynk/cashflow/internal/storage"
	"github.com/mmynk/cashflow/internal/wire"
)

// Fully-qualified service names.
const (
	ObligationServiceName = "cashflow.v1.ObligationService"
	SettlementServiceName = "cashflow.v1.SettlementService"
	GroupServiceName      = "cashflow.v1.GroupService"
	AuthServiceName       = "cashflow.v1.AuthService"
)

// Procedure paths, as they appear in the URL.
const (
	ObligationServiceAddObligationsProcedure   = "/" + ObligationServiceName + "/AddObligations"
	ObligationServiceListObligationsProcedure  = "/" + ObligationServiceName + "/ListObligations"
	ObligationServiceDeleteObligationProcedure = "/" + ObligationServiceName + "/DeleteObligation"
	ObligationServiceSplitBillProcedure        = "/" + ObligationServiceName + "/SplitBill"

	SettlementServiceSettleProcedure      = "/" + SettlementServiceName + "/Settle"
	SettlementServiceSettleGroupProcedure = "/" + SettlementServiceName + "/SettleGroup"
	SettlementServiceProjectProcedure     = "/" + SettlementServiceName + "/Project"
	SettlementServiceListRunsProcedure    = "/" + SettlementServiceName + "/ListRuns"

	GroupServiceCreateGroupProcedure = "/" + GroupServiceName + "/CreateGroup"
	GroupServiceGetGroupProcedure    = "/" + GroupServiceName + "/GetGroup"
	GroupServiceListGroupsProcedure  = "/" + GroupServiceName + "/ListGroups"

	AuthServiceRegisterProcedure       = "/" + AuthServiceName + "/Register"
	AuthServiceLoginProcedure          = "/" + AuthServiceName + "/Login"
	AuthServiceGetCurrentUserProcedure = "/" + AuthServiceName + "/GetCurrentUser"
)

// ProtectedProcedures require an authenticated caller.
var ProtectedProcedures = []string{
	ObligationServiceAddObligationsProcedure,
	ObligationServiceDeleteObligationProcedure,
	ObligationServiceSplitBillProcedure,
	AuthServiceGetCurrentUserProcedure,
}

// unary adapts a typed handler to a Struct-in, Struct-out Connect handler.
func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) *connect.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, r *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			var req Req
			if err := wire.FromStruct(r.Msg, &req); err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}

			res, err := fn(ctx, &req)
			if err != nil {
				return nil, err
			}

			out, err := wire.ToStruct(res)
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			return connect.NewResponse(out), nil
		},
		opts...,
	)
}

// serviceHandler routes a service's procedures, like a generated
// NewXServiceHandler.
func serviceHandler(name string, handlers map[string]*connect.Handler) (string, http.Handler) {
	mux := http.NewServeMux()
	for procedure, h := range handlers {
		mux.Handle(procedure, h)
	}
	return "/" + name + "/", mux
}

// toConnectError maps domain and storage errors onto Connect codes.
func toConnectError(err error) error {
	var connectErr *connect.Error
	switch {
	case errors.As(err, &connectErr):
		return err
	case errors.Is(err, calculator.ErrInvalidObligation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, calculator.ErrInternalInconsistency):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// invalidArgument is a client error outside the engine's validation.
func invalidArgument(msg string) error {
	return connect.NewError(connect.CodeInvalidArgument, errors.New(msg))
}

// requireUser returns the authenticated user ID or an Unauthenticated error.
func requireUser(ctx context.Context, procedure string) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		slog.Warn("Unauthenticated call", "procedure", procedure)
		return "", connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return userID, nil
}

// Client calls cashflow procedures over Connect.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	token      string
	opts       []connect.ClientOption
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, opts: opts}
}

// WithToken returns a copy that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// Call invokes procedure with req and decodes the reply into res.
func (c *Client) Call(ctx context.Context, procedure string, req, res any) error {
	msg, err := wire.ToStruct(req)
	if err != nil {
		return err
	}

	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
	request := connect.NewRequest(msg)
	if c.token != "" {
		request.Header().Set("Authorization", "Bearer "+c.token)
	}

	resp, err := client.CallUnary(ctx, request)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	return wire.FromStruct(resp.Msg, res)
}
