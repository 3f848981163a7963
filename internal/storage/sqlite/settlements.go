package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/cashflow/internal/models"
)

// CreateSettlementRun archives a settlement run and its transfers.
func (s *SQLiteStore) CreateSettlementRun(ctx context.Context, run *models.SettlementRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlement_runs (id, group_id, evaluation_date, obligation_count, total, created_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullString(run.GroupID), run.EvaluationDate.Format(time.DateOnly),
		run.ObligationCount, run.Total, run.CreatedAt, run.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement run: %w", err)
	}

	for i, t := range run.Transfers {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO run_transfers (run_id, position, payer, payee, amount) VALUES (?, ?, ?, ?, ?)",
			run.ID, i, t.Payer, t.Payee, t.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transfer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListSettlementRuns retrieves archived runs for a group, newest first.
// An empty groupID lists the runs of the global ledger.
func (s *SQLiteStore) ListSettlementRuns(ctx context.Context, groupID string) ([]*models.SettlementRun, error) {
	query := `SELECT id, group_id, evaluation_date, obligation_count, total, created_at, created_by
		FROM settlement_runs`
	var args []any
	if groupID == "" {
		query += " WHERE group_id IS NULL"
	} else {
		query += " WHERE group_id = ?"
		args = append(args, groupID)
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement runs: %w", err)
	}

	var runs []*models.SettlementRun
	for rows.Next() {
		run := &models.SettlementRun{}
		var group *string
		var evaluationDate string
		if err := rows.Scan(&run.ID, &group, &evaluationDate, &run.ObligationCount,
			&run.Total, &run.CreatedAt, &run.CreatedBy); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan settlement run: %w", err)
		}
		if group != nil {
			run.GroupID = *group
		}
		run.EvaluationDate, err = time.Parse(time.DateOnly, evaluationDate)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("invalid evaluation date %q: %w", evaluationDate, err)
		}
		runs = append(runs, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlement runs: %w", err)
	}

	for _, run := range runs {
		transfers, err := s.listTransfers(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		run.Transfers = transfers
	}

	return runs, nil
}

func (s *SQLiteStore) listTransfers(ctx context.Context, runID string) ([]models.Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payer, payee, amount FROM run_transfers WHERE run_id = ? ORDER BY position",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.Payer, &t.Payee, &t.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}
	return transfers, nil
}
