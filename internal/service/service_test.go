package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/cashflow/internal/auth"
	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/metrics"
	"github.com/mmynk/cashflow/internal/middleware"
	"github.com/mmynk/cashflow/internal/storage/sqlite"
	"github.com/mmynk/cashflow/internal/wire"
)

type testEnv struct {
	anon    *Client
	alice   *Client
	bob     *Client
	store   *sqlite.SQLiteStore
	metrics *metrics.Metrics
}

// setupTestServer serves every service over a temp SQLite database and
// registers two users.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	m := metrics.New()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)

	opts := connect.WithInterceptors(
		middleware.MetricsInterceptor(m),
		middleware.ProtectProcedures(jwtManager, ProtectedProcedures...),
		middleware.LoggingInterceptor(),
	)

	mux := http.NewServeMux()
	mux.Handle(NewObligationService(store, calculator.DefaultPlaces, m).Handler(opts))
	mux.Handle(NewSettlementService(store, calculator.New(), m).Handler(opts))
	mux.Handle(NewGroupService(store).Handler(opts))
	mux.Handle(NewAuthService(authenticator, jwtManager, store, slog.Default()).Handler(opts))

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	env := &testEnv{
		anon:    NewClient(http.DefaultClient, server.URL),
		store:   store,
		metrics: m,
	}
	env.alice = env.anon.WithToken(register(t, env.anon, "alice@example.com"))
	env.bob = env.anon.WithToken(register(t, env.anon, "bob@example.com"))
	return env
}

func register(t *testing.T, c *Client, email string) string {
	t.Helper()
	var resp AuthResponse
	err := c.Call(context.Background(), AuthServiceRegisterProcedure,
		RegisterRequest{Email: email, Password: "password123"}, &resp)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func record(sender, receiver, amount string) wire.ObligationRecord {
	return wire.ObligationRecord{Sender: sender, Receiver: receiver, Amount: decimal.RequireFromString(amount)}
}

func assertAmount(t *testing.T, want string, got json.Number) {
	t.Helper()
	d, err := decimal.NewFromString(string(got))
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func TestSettle(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	t.Run("two parties", func(t *testing.T) {
		var resp wire.SettleResult
		err := env.anon.Call(ctx, SettlementServiceSettleProcedure, SettleRequest{
			Obligations: []wire.ObligationRecord{record("A", "B", "30"), record("B", "A", "10")},
		}, &resp)
		require.NoError(t, err)

		require.Len(t, resp.Settlements, 1)
		assert.Equal(t, "A", resp.Settlements[0].Sender)
		assert.Equal(t, "B", resp.Settlements[0].Receiver)
		assertAmount(t, "20", resp.Settlements[0].Amount)
		assertAmount(t, "-20", resp.Balances["A"])
		assertAmount(t, "20", resp.Total)
		assert.NotEmpty(t, resp.EvaluationDate)
	})

	t.Run("three parties", func(t *testing.T) {
		var resp wire.SettleResult
		err := env.anon.Call(ctx, SettlementServiceSettleProcedure, SettleRequest{
			Obligations: []wire.ObligationRecord{
				record("A", "B", "10"), record("B", "C", "20"), record("C", "A", "30"),
				record("C", "B", "20"),
			},
		}, &resp)
		require.NoError(t, err)

		got := map[string]string{}
		for _, s := range resp.Settlements {
			got[s.Sender+"->"+s.Receiver] = decimal.RequireFromString(string(s.Amount)).String()
		}
		// A +20, B +10, C -30
		assert.Equal(t, map[string]string{"C->A": "20", "C->B": "10"}, got)
	})

	t.Run("overdue obligation accrues interest and penalty", func(t *testing.T) {
		r := record("A", "B", "100")
		r.DueDate = "2024-06-01"
		r.InterestRate = decimal.NewNullDecimal(decimal.RequireFromString("0.01"))
		r.Penalty = decimal.NewNullDecimal(decimal.NewFromInt(5))

		var resp wire.SettleResult
		err := env.anon.Call(ctx, SettlementServiceSettleProcedure, SettleRequest{
			Obligations:    []wire.ObligationRecord{r},
			EvaluationDate: "2024-06-11",
		}, &resp)
		require.NoError(t, err)

		assert.Equal(t, "2024-06-11", resp.EvaluationDate)
		require.Len(t, resp.Settlements, 1)
		assertAmount(t, "115", resp.Settlements[0].Amount)
	})

	t.Run("empty input settles to nothing", func(t *testing.T) {
		var resp wire.SettleResult
		require.NoError(t, env.anon.Call(ctx, SettlementServiceSettleProcedure, SettleRequest{}, &resp))
		assert.Empty(t, resp.Settlements)
	})

	t.Run("invalid obligation fails the whole run", func(t *testing.T) {
		err := env.anon.Call(ctx, SettlementServiceSettleProcedure, SettleRequest{
			Obligations: []wire.ObligationRecord{record("A", "B", "10"), record("B", "B", "5")},
		}, nil)
		require.Error(t, err)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
		assert.Contains(t, err.Error(), "#1")
		assert.Contains(t, err.Error(), "creditor")
	})

	t.Run("bad evaluation date", func(t *testing.T) {
		err := env.anon.Call(ctx, SettlementServiceSettleProcedure, SettleRequest{
			Obligations:    []wire.ObligationRecord{record("A", "B", "10")},
			EvaluationDate: "tomorrow",
		}, nil)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	runs, err := testutil.GatherAndCount(env.metrics.Registry(), "cashflow_settlement_runs_total")
	require.NoError(t, err)
	// Records rejected at the boundary never reach the engine.
	assert.Equal(t, 1, runs, "expected only the ok outcome series")
}

func TestProject(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	r := record("A", "B", "100")
	r.DueDate = "2024-06-01"
	r.InterestRate = decimal.NewNullDecimal(decimal.RequireFromString("0.01"))
	r.Penalty = decimal.NewNullDecimal(decimal.NewFromInt(5))

	var resp ProjectResponse
	err := env.anon.Call(ctx, SettlementServiceProjectProcedure, ProjectRequest{
		Obligations:     []wire.ObligationRecord{r},
		EvaluationDates: []string{"2024-05-01", "2024-06-11", "2024-06-21"},
	}, &resp)
	require.NoError(t, err)

	require.Len(t, resp.Projections, 3)
	assert.Equal(t, "2024-05-01", resp.Projections[0].EvaluationDate)
	assertAmount(t, "100", resp.Projections[0].Total)
	assertAmount(t, "115", resp.Projections[1].Total)
	assertAmount(t, "125", resp.Projections[2].Total)

	t.Run("dates required", func(t *testing.T) {
		err := env.anon.Call(ctx, SettlementServiceProjectProcedure, ProjectRequest{
			Obligations: []wire.ObligationRecord{r},
		}, nil)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})
}

func TestObligations(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	t.Run("recording requires auth", func(t *testing.T) {
		err := env.anon.Call(ctx, ObligationServiceAddObligationsProcedure, AddObligationsRequest{
			Obligations: []wire.ObligationRecord{record("A", "B", "10")},
		}, nil)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})

	var added AddObligationsResponse
	err := env.alice.Call(ctx, ObligationServiceAddObligationsProcedure, AddObligationsRequest{
		Obligations: []wire.ObligationRecord{record("A", "B", "30.25"), record("B", "A", "10")},
	}, &added)
	require.NoError(t, err)
	require.Len(t, added.IDs, 2)

	t.Run("list returns stored records with timestamps", func(t *testing.T) {
		var list ListObligationsResponse
		require.NoError(t, env.anon.Call(ctx, ObligationServiceListObligationsProcedure, ListObligationsRequest{}, &list))
		require.Len(t, list.Obligations, 2)

		first := list.Obligations[0]
		assert.Equal(t, added.IDs[0], first.ID)
		assert.Equal(t, "A", first.Sender)
		assert.True(t, first.Amount.Equal(decimal.RequireFromString("30.25")))
		assert.NotEmpty(t, first.Timestamp)
		assert.NotEmpty(t, first.CreatedBy)
	})

	t.Run("invalid batch is rejected whole", func(t *testing.T) {
		err := env.alice.Call(ctx, ObligationServiceAddObligationsProcedure, AddObligationsRequest{
			Obligations: []wire.ObligationRecord{record("C", "D", "1"), record("C", "D", "-1")},
		}, nil)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

		stored, err := env.store.ListObligations(ctx, "")
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})

	t.Run("empty batch", func(t *testing.T) {
		err := env.alice.Call(ctx, ObligationServiceAddObligationsProcedure, AddObligationsRequest{}, nil)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("settle the ledger", func(t *testing.T) {
		var resp wire.SettleResult
		require.NoError(t, env.anon.Call(ctx, SettlementServiceSettleGroupProcedure, SettleGroupRequest{}, &resp))
		require.Len(t, resp.Settlements, 1)
		assertAmount(t, "20.25", resp.Settlements[0].Amount)
		assert.Empty(t, resp.RunID)
	})

	t.Run("only the creator can delete", func(t *testing.T) {
		err := env.bob.Call(ctx, ObligationServiceDeleteObligationProcedure, DeleteObligationRequest{ID: added.IDs[0]}, nil)
		assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

		err = env.alice.Call(ctx, ObligationServiceDeleteObligationProcedure, DeleteObligationRequest{ID: added.IDs[0]}, nil)
		require.NoError(t, err)

		err = env.alice.Call(ctx, ObligationServiceDeleteObligationProcedure, DeleteObligationRequest{ID: added.IDs[0]}, nil)
		assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	})
}

func TestGroupSettlement(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	var created GroupResponse
	require.NoError(t, env.alice.Call(ctx, GroupServiceCreateGroupProcedure,
		CreateGroupRequest{Name: "Flat", Members: []string{"Alice"}}, &created))
	groupID := created.Group.ID
	require.NotEmpty(t, groupID)

	t.Run("split bill records shares and grows the group", func(t *testing.T) {
		var resp AddObligationsResponse
		err := env.alice.Call(ctx, ObligationServiceSplitBillProcedure, SplitBillRequest{
			GroupID: groupID,
			Bill: wire.BillRecord{
				Payer:        "Alice",
				Total:        decimal.NewFromInt(90),
				Participants: []string{"Alice", "Bob", "Carol"},
			},
		}, &resp)
		require.NoError(t, err)
		require.Len(t, resp.IDs, 2)

		var group GroupResponse
		require.NoError(t, env.anon.Call(ctx, GroupServiceGetGroupProcedure, GetGroupRequest{GroupID: groupID}, &group))
		assert.Equal(t, []string{"Alice", "Bob", "Carol"}, group.Group.Members)
	})

	t.Run("obligations outside the group are ignored", func(t *testing.T) {
		err := env.alice.Call(ctx, ObligationServiceAddObligationsProcedure, AddObligationsRequest{
			Obligations: []wire.ObligationRecord{record("X", "Y", "1000")},
		}, nil)
		require.NoError(t, err)
	})

	var settled wire.SettleResult
	err := env.alice.Call(ctx, SettlementServiceSettleGroupProcedure, SettleGroupRequest{
		GroupID: groupID,
		Record:  true,
	}, &settled)
	require.NoError(t, err)
	require.NotEmpty(t, settled.RunID)
	require.Len(t, settled.Settlements, 2)
	assertAmount(t, "60", settled.Total)
	for _, s := range settled.Settlements {
		assert.Equal(t, "Alice", s.Receiver)
		assertAmount(t, "30", s.Amount)
	}

	t.Run("run is archived and obligations remain", func(t *testing.T) {
		var runs ListRunsResponse
		require.NoError(t, env.anon.Call(ctx, SettlementServiceListRunsProcedure, ListRunsRequest{GroupID: groupID}, &runs))
		require.Len(t, runs.Runs, 1)
		assert.Equal(t, settled.RunID, runs.Runs[0].ID)
		assert.Equal(t, 2, runs.Runs[0].ObligationCount)
		assert.Len(t, runs.Runs[0].Settlements, 2)
		assert.NotEmpty(t, runs.Runs[0].CreatedBy)

		var list ListObligationsResponse
		require.NoError(t, env.anon.Call(ctx, ObligationServiceListObligationsProcedure,
			ListObligationsRequest{GroupID: groupID}, &list))
		assert.Len(t, list.Obligations, 2)
	})

	t.Run("unknown group", func(t *testing.T) {
		err := env.anon.Call(ctx, SettlementServiceSettleGroupProcedure, SettleGroupRequest{GroupID: "nope"}, nil)
		assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

		err = env.alice.Call(ctx, ObligationServiceAddObligationsProcedure, AddObligationsRequest{
			GroupID:     "nope",
			Obligations: []wire.ObligationRecord{record("A", "B", "1")},
		}, nil)
		assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	})
}

func TestGroupService(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	var created GroupResponse
	require.NoError(t, env.anon.Call(ctx, GroupServiceCreateGroupProcedure,
		CreateGroupRequest{Members: []string{"Bob", " Alice ", ""}}, &created))
	assert.Equal(t, "Settling with Alice, Bob", created.Group.Name)
	assert.Equal(t, []string{"Alice", "Bob"}, created.Group.Members)
	assert.NotZero(t, created.Group.CreatedAt)

	var list ListGroupsResponse
	require.NoError(t, env.anon.Call(ctx, GroupServiceListGroupsProcedure, ListGroupsRequest{}, &list))
	require.Len(t, list.Groups, 1)
	assert.Equal(t, created.Group.ID, list.Groups[0].ID)

	err := env.anon.Call(ctx, GroupServiceGetGroupProcedure, GetGroupRequest{GroupID: "missing"}, nil)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	err = env.anon.Call(ctx, GroupServiceGetGroupProcedure, GetGroupRequest{}, nil)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestAuthService(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	t.Run("current user", func(t *testing.T) {
		var me UserResponse
		require.NoError(t, env.alice.Call(ctx, AuthServiceGetCurrentUserProcedure, GetCurrentUserRequest{}, &me))
		assert.Equal(t, "alice@example.com", me.User.Email)
		assert.Equal(t, "alice", me.User.DisplayName)

		err := env.anon.Call(ctx, AuthServiceGetCurrentUserProcedure, GetCurrentUserRequest{}, nil)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})

	t.Run("login", func(t *testing.T) {
		var resp AuthResponse
		require.NoError(t, env.anon.Call(ctx, AuthServiceLoginProcedure,
			LoginRequest{Email: "alice@example.com", Password: "password123"}, &resp))
		assert.NotEmpty(t, resp.Token)

		err := env.anon.Call(ctx, AuthServiceLoginProcedure,
			LoginRequest{Email: "alice@example.com", Password: "wrong-password"}, nil)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})

	t.Run("duplicate registration", func(t *testing.T) {
		err := env.anon.Call(ctx, AuthServiceRegisterProcedure,
			RegisterRequest{Email: "alice@example.com", Password: "password123"}, nil)
		assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))
	})

	t.Run("weak password", func(t *testing.T) {
		err := env.anon.Call(ctx, AuthServiceRegisterProcedure,
			RegisterRequest{Email: "carol@example.com", Password: "short"}, nil)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})
}

func TestFindNewMembers(t *testing.T) {
	got := findNewMembers([]string{"A", "B", "C", "B", "D"}, []string{"A", "C"})
	assert.Equal(t, []string{"B", "D"}, got)
	assert.Nil(t, findNewMembers([]string{"A"}, []string{"A"}))
}
