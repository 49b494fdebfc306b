package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/batch-allocation/internal/core/domain"
)

//go:embed schema.sql
var schemaSQL string

// MySQLAdapter stores batches and their allocated order lines.
// The DSN must set parseTime=true.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Add(ctx context.Context, batch *domain.Batch) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO batches (reference, sku, qty, eta)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			id = LAST_INSERT_ID(id), sku = VALUES(sku), qty = VALUES(qty),
			eta = VALUES(eta), version = version + 1`,
		batch.Reference, batch.SKU, batch.Qty(), nullDate(batch.ETA()),
	)
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}

	batchID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("batch id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("clear order lines: %w", err)
	}

	for _, line := range batch.OrderLines() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (batch_id, order_reference, sku, qty)
			VALUES (?, ?, ?, ?)`,
			batchID, line.OrderReference, line.SKU, line.Qty,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) Get(ctx context.Context, reference string) (*domain.Batch, error) {
	var row batchRow
	err := m.db.QueryRowContext(ctx, `
		SELECT id, reference, sku, qty, eta
		FROM batches WHERE reference = ?`, reference,
	).Scan(&row.id, &row.reference, &row.sku, &row.qty, &row.eta)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}

	lines, err := m.queryLines(ctx, `
		SELECT batch_id, order_reference, sku, qty
		FROM order_lines WHERE batch_id = ?`, row.id)
	if err != nil {
		return nil, err
	}

	return row.restore(lines[row.id])
}

func (m *MySQLAdapter) List(ctx context.Context) ([]*domain.Batch, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, reference, sku, qty, eta
		FROM batches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batchRows []batchRow
	for rows.Next() {
		var row batchRow
		if err := rows.Scan(&row.id, &row.reference, &row.sku, &row.qty, &row.eta); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batchRows = append(batchRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}

	lines, err := m.queryLines(ctx, `
		SELECT batch_id, order_reference, sku, qty
		FROM order_lines`)
	if err != nil {
		return nil, err
	}

	batches := make([]*domain.Batch, 0, len(batchRows))
	for _, row := range batchRows {
		b, err := row.restore(lines[row.id])
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (m *MySQLAdapter) queryLines(ctx context.Context, query string, args ...any) (map[int64][]domain.OrderLine, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	lines := make(map[int64][]domain.OrderLine)
	for rows.Next() {
		var batchID int64
		var line domain.OrderLine
		if err := rows.Scan(&batchID, &line.OrderReference, &line.SKU, &line.Qty); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines[batchID] = append(lines[batchID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

type batchRow struct {
	id        int64
	reference string
	sku       string
	qty       int
	eta       sql.NullTime
}

func (r batchRow) restore(lines []domain.OrderLine) (*domain.Batch, error) {
	var eta *time.Time
	if r.eta.Valid {
		eta = &r.eta.Time
	}
	b, err := domain.RestoreBatch(r.reference, r.sku, r.qty, eta, lines)
	if err != nil {
		return nil, fmt.Errorf("restore batch %s: %w", r.reference, err)
	}
	return b, nil
}

func nullDate(eta *time.Time) sql.NullTime {
	if eta == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *eta, Valid: true}
}
