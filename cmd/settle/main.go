// Command settle computes minimal settlements for a JSON array of
// obligation records read from a file or stdin.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/service"
	"github.com/mmynk/cashflow/internal/wire"
	"github.com/mmynk/cashflow/pkg/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "run":
		return runSettle(args[1:], stdin, stdout, stderr)
	case "project":
		return runProject(args[1:], stdin, stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: settle <command> [options] [file]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run      Settle obligations at one evaluation date")
	fmt.Fprintln(w, "  project  Settle the same obligations at several dates")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Obligations are a JSON array of {sender, receiver, amount, due_date,")
	fmt.Fprintln(w, "interest_rate, penalty, penalty_kind, timestamp} read from file or stdin.")
	fmt.Fprintln(w, "Run `settle <command> -h` for command-specific help.")
}

// common holds the flags shared by every command.
type common struct {
	places  int
	format  string
	verbose bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.IntVar(&c.places, "places", int(calculator.DefaultPlaces), "Currency decimal places")
	fs.StringVar(&c.format, "format", "table", "Output format: table or json")
	fs.BoolVar(&c.verbose, "v", false, "Log engine details to stderr")
}

func (c *common) validate(stderr io.Writer) error {
	if c.places < 0 || c.places > int(calculator.MaxPlaces) {
		return fmt.Errorf("-places must be between 0 and %d", calculator.MaxPlaces)
	}
	if c.format != "table" && c.format != "json" {
		return fmt.Errorf("unknown -format %q", c.format)
	}
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(logging.New(stderr, level, "text"))
	return nil
}

func runSettle(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	dateStr := fs.String("date", "", "Evaluation date YYYY-MM-DD (default: today)")
	server := fs.String("server", "", "Settle on a cashflow server at this URL instead of locally")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := c.validate(stderr); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	records, err := readRecords(stdin, fs.Arg(0))
	if err != nil {
		return fail(stderr, err)
	}

	var result wire.SettleResult
	if *server != "" {
		client := service.NewClient(http.DefaultClient, strings.TrimRight(*server, "/"))
		err = client.Call(context.Background(), service.SettlementServiceSettleProcedure,
			service.SettleRequest{Obligations: records, EvaluationDate: *dateStr}, &result)
		if err != nil {
			return fail(stderr, err)
		}
	} else {
		result, err = settleLocally(records, *dateStr, int32(c.places))
		if err != nil {
			return fail(stderr, err)
		}
	}

	if c.format == "json" {
		return writeJSON(stdout, stderr, result)
	}
	writeTable(stdout, result)
	return 0
}

func settleLocally(records []wire.ObligationRecord, dateStr string, places int32) (wire.SettleResult, error) {
	var date time.Time
	if dateStr != "" {
		var err error
		if date, err = wire.ParseDate(dateStr); err != nil {
			return wire.SettleResult{}, fmt.Errorf("invalid -date: %w", err)
		}
	}

	obligations, err := wire.Obligations(records)
	if err != nil {
		return wire.SettleResult{}, err
	}

	engine := calculator.New(calculator.WithPrecision(places))
	result, err := engine.Settle(obligations, date)
	if err != nil {
		return wire.SettleResult{}, err
	}
	return wire.Result(result, places), nil
}

func runProject(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("project", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	datesStr := fs.String("dates", "", "Comma-separated evaluation dates YYYY-MM-DD (required)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := c.validate(stderr); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var dates []time.Time
	for _, s := range strings.Split(*datesStr, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		date, err := wire.ParseDate(s)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -dates: %v\n", err)
			return 2
		}
		dates = append(dates, date)
	}
	if len(dates) == 0 {
		fmt.Fprintln(stderr, "-dates is required")
		return 2
	}

	records, err := readRecords(stdin, fs.Arg(0))
	if err != nil {
		return fail(stderr, err)
	}
	obligations, err := wire.Obligations(records)
	if err != nil {
		return fail(stderr, err)
	}

	places := int32(c.places)
	engine := calculator.New(calculator.WithPrecision(places))
	results, err := engine.Project(context.Background(), obligations, dates)
	if err != nil {
		return fail(stderr, err)
	}

	projections := make([]wire.SettleResult, len(results))
	for i, r := range results {
		projections[i] = wire.Result(r, places)
	}

	if c.format == "json" {
		return writeJSON(stdout, stderr, service.ProjectResponse{Projections: projections})
	}
	for i, p := range projections {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintf(stdout, "== %s ==\n", p.EvaluationDate)
		writeTable(stdout, p)
	}
	return 0
}

func readRecords(stdin io.Reader, path string) ([]wire.ObligationRecord, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var records []wire.ObligationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON input: %w", err)
	}
	return records, nil
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func writeTable(w io.Writer, result wire.SettleResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "FROM\tTO\tAMOUNT\t")
	for _, s := range result.Settlements {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", s.Sender, s.Receiver, s.Amount)
	}
	fmt.Fprintf(tw, "\t\t%s\t\n", result.Total)
	tw.Flush()
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "settle: %v\n", err)
	if errors.Is(err, calculator.ErrInternalInconsistency) {
		return 3
	}
	return 1
}
