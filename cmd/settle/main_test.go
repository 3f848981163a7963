package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/service"
	"github.com/mmynk/cashflow/internal/storage/sqlite"
	"github.com/mmynk/cashflow/internal/wire"
)

const twoParties = `[
	{"sender": "alice", "receiver": "bob", "amount": "30"},
	{"sender": "bob", "receiver": "alice", "amount": "10"}
]`

const overdue = `[{"sender": "A", "receiver": "B", "amount": "100",
	"due_date": "2024-06-01", "interest_rate": "0.01", "penalty": "5"}]`

func runCLI(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCLI(t, "")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage: settle")

	code, stdout, _ := runCLI(t, "", "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "project")

	code, _, stderr = runCLI(t, "", "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "bogus"`)
}

func TestRunJSON(t *testing.T) {
	code, stdout, stderr := runCLI(t, twoParties, "run", "-format", "json", "-date", "2024-06-01")
	require.Equal(t, 0, code, stderr)

	var result wire.SettleResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "2024-06-01", result.EvaluationDate)
	require.Len(t, result.Settlements, 1)
	assert.Equal(t, "alice", result.Settlements[0].Sender)
	assert.Equal(t, "bob", result.Settlements[0].Receiver)
	assert.Equal(t, json.Number("20.00"), result.Settlements[0].Amount)
	assert.Equal(t, json.Number("20.00"), result.Total)
}

func TestRunTable(t *testing.T) {
	code, stdout, stderr := runCLI(t, twoParties, "run", "-places", "0")
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "FROM")
	assert.Equal(t, []string{"alice", "bob", "20"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"20"}, strings.Fields(lines[2]))
}

func TestRunFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obligations.json")
	require.NoError(t, os.WriteFile(path, []byte(overdue), 0o644))

	code, stdout, stderr := runCLI(t, "", "run", "-format", "json", "-date", "2024-06-11", path)
	require.Equal(t, 0, code, stderr)

	var result wire.SettleResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, json.Number("115.00"), result.Total)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		stdin  string
		args   []string
		code   int
		stderr string
	}{
		{
			name:   "malformed json",
			stdin:  `{"sender":`,
			args:   []string{"run"},
			code:   1,
			stderr: "failed to parse JSON input",
		},
		{
			name:   "invalid obligation",
			stdin:  `[{"sender": "A", "receiver": "A", "amount": "5"}]`,
			args:   []string{"run"},
			code:   1,
			stderr: "invalid obligation",
		},
		{
			name:   "bad date",
			stdin:  twoParties,
			args:   []string{"run", "-date", "yesterday"},
			code:   1,
			stderr: "invalid -date",
		},
		{
			name:   "bad format",
			stdin:  twoParties,
			args:   []string{"run", "-format", "xml"},
			code:   2,
			stderr: `unknown -format "xml"`,
		},
		{
			name:   "bad places",
			stdin:  twoParties,
			args:   []string{"run", "-places", "12"},
			code:   2,
			stderr: "-places must be between 0 and 8",
		},
		{
			name:   "missing file",
			args:   []string{"run", filepath.Join(os.TempDir(), "does-not-exist.json")},
			code:   1,
			stderr: "failed to read input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.stdin, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, stderr, tt.stderr)
		})
	}
}

func TestProjectJSON(t *testing.T) {
	code, stdout, stderr := runCLI(t, overdue,
		"project", "-format", "json", "-dates", "2024-05-01, 2024-06-11,2024-06-21")
	require.Equal(t, 0, code, stderr)

	var resp service.ProjectResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Projections, 3)
	assert.Equal(t, "2024-05-01", resp.Projections[0].EvaluationDate)
	assert.Equal(t, json.Number("100.00"), resp.Projections[0].Total)
	assert.Equal(t, json.Number("115.00"), resp.Projections[1].Total)
	assert.Equal(t, json.Number("125.00"), resp.Projections[2].Total)
}

func TestProjectTable(t *testing.T) {
	code, stdout, stderr := runCLI(t, overdue, "project", "-dates", "2024-05-01,2024-06-21")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "== 2024-05-01 ==")
	assert.Contains(t, stdout, "== 2024-06-21 ==")
	assert.Contains(t, stdout, "125.00")
}

func TestProjectRequiresDates(t *testing.T) {
	code, _, stderr := runCLI(t, overdue, "project")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "-dates is required")

	code, _, stderr = runCLI(t, overdue, "project", "-dates", "2024-13-40")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "invalid -dates")
}

func TestRunRemote(t *testing.T) {
	store, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	settlements := service.NewSettlementService(store, calculator.New(), nil)
	path, handler := settlements.Handler()
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	code, stdout, stderr := runCLI(t, twoParties,
		"run", "-format", "json", "-date", "2024-06-01", "-server", server.URL+"/")
	require.Equal(t, 0, code, stderr)

	var result wire.SettleResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	require.Len(t, result.Settlements, 1)
	assert.Equal(t, "alice", result.Settlements[0].Sender)
	assert.Equal(t, "2024-06-01", result.EvaluationDate)

	t.Run("server rejects invalid input", func(t *testing.T) {
		code, _, stderr := runCLI(t, `[{"sender": "A", "receiver": "A", "amount": "5"}]`,
			"run", "-server", server.URL)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "invalid_argument")
	})
}
