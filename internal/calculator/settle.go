package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one settlement run.
type Result struct {
	// EvaluationDate is the calendar date interest and penalties were
	// computed against.
	EvaluationDate time.Time

	// Normalized holds the time-adjusted obligations in chronological order
	// of their Timestamp (untimed obligations first, input order kept).
	Normalized []NormalizedObligation

	// Balances are the net positions per party, sorted by party.
	Balances []PartyBalance

	// Settlements are the payments that clear every balance, in the order
	// the reducer produced them.
	Settlements []Settlement

	// Total is the sum of all settlement amounts.
	Total decimal.Decimal
}

// Engine runs settlements. It holds only configuration and is safe for
// concurrent use.
type Engine struct {
	places        int32
	maxIterations int
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrecision sets the number of decimal places of the minor unit.
// Values outside [0, MaxPlaces] are ignored.
func WithPrecision(places int32) Option {
	return func(e *Engine) {
		if validPlaces(places) {
			e.places = places
		}
	}
}

// WithMaxIterations caps the reducer loop. Zero keeps the default of one
// iteration per nonzero party.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxIterations = n
		}
	}
}

// WithClock replaces time.Now as the source of the default evaluation date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		places: DefaultPlaces,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Places returns the currency precision the engine rounds to.
func (e *Engine) Places() int32 {
	return e.places
}

// Settle computes the settlements that clear obligations as of
// evaluationDate. A zero evaluationDate means today.
//
// The whole run fails if any obligation is invalid; the error names the
// obligation's index. obligations is not modified.
func (e *Engine) Settle(obligations []Obligation, evaluationDate time.Time) (*Result, error) {
	if evaluationDate.IsZero() {
		evaluationDate = e.now()
	}
	evaluationDate = CivilDate(evaluationDate)

	normalized := make([]NormalizedObligation, len(obligations))
	for i, o := range obligations {
		n, err := Normalize(o, evaluationDate, e.places)
		if err != nil {
			return nil, withIndex(err, i)
		}
		normalized[i] = n
	}
	sortChronologically(normalized)

	balances, err := Aggregate(normalized)
	if err != nil {
		return nil, err
	}

	transfers, err := Reduce(balances, e.maxIterations)
	if err != nil {
		return nil, err
	}

	settlements, total, err := Report(transfers, balances, e.places)
	if err != nil {
		return nil, err
	}

	slog.Debug("Settlement run completed",
		"evaluation_date", evaluationDate.Format(time.DateOnly),
		"obligations", len(obligations),
		"parties", len(balances),
		"settlements", len(settlements),
		"total", total.StringFixed(e.places),
	)

	return &Result{
		EvaluationDate: evaluationDate,
		Normalized:     normalized,
		Balances:       balances.Sorted(e.places),
		Settlements:    settlements,
		Total:          total,
	}, nil
}

// Project settles the same obligations at several evaluation dates in
// parallel. Results are returned in the order of dates; the first failure
// cancels the remaining runs.
func (e *Engine) Project(ctx context.Context, obligations []Obligation, dates []time.Time) ([]*Result, error) {
	results := make([]*Result, len(dates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, date := range dates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := e.Settle(obligations, date)
			if err != nil {
				return fmt.Errorf("evaluation date %s: %w", date.Format(time.DateOnly), err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func sortChronologically(normalized []NormalizedObligation) {
	sort.SliceStable(normalized, func(i, j int) bool {
		a, b := normalized[i].Timestamp, normalized[j].Timestamp
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
}
