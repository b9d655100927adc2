package escrowRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"washflow/database/repository"
	"washflow/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresLedgerStore struct {
	pool *pgxpool.Pool
}

// NewPostgresLedgerStore keeps transactions in escrow_transactions and the
// operation log in escrow_ledger_entries.
func NewPostgresLedgerStore(pool *pgxpool.Pool) LedgerStore {
	return &postgresLedgerStore{pool: pool}
}

const txColumns = `id, order_id, idempotency_key, payment_ref, currency, amount, original_amount,
	captured_amount, refunded_amount, status, freeze_reason, held_at, captured_at, refunded_at,
	frozen_at, version, created_at, updated_at`

func (s *postgresLedgerStore) Insert(ctx context.Context, t *models.EscrowTransaction) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO escrow_transactions (`+txColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			t.ID, t.OrderID, t.IdempotencyKey, t.PaymentRef, t.Currency, t.Amount, t.OriginalAmount,
			t.CapturedAmount, t.RefundedAmount, string(t.Status), t.FreezeReason, t.HeldAt, t.CapturedAt,
			t.RefundedAt, t.FrozenAt, t.Version, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("insert escrow transaction: %w", err)
		}
		return insertEntries(ctx, tx, t.ID, 0, t.Log)
	})
}

func (s *postgresLedgerStore) GetByID(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	return s.load(ctx, `SELECT `+txColumns+` FROM escrow_transactions WHERE id = $1`, id)
}

func (s *postgresLedgerStore) GetByOrderID(ctx context.Context, orderID string) (*models.EscrowTransaction, error) {
	return s.load(ctx, `SELECT `+txColumns+` FROM escrow_transactions WHERE order_id = $1`, orderID)
}

func (s *postgresLedgerStore) load(ctx context.Context, query, arg string) (*models.EscrowTransaction, error) {
	var t models.EscrowTransaction
	var status string
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.OrderID, &t.IdempotencyKey, &t.PaymentRef, &t.Currency, &t.Amount, &t.OriginalAmount,
		&t.CapturedAmount, &t.RefundedAmount, &status, &t.FreezeReason, &t.HeldAt, &t.CapturedAt,
		&t.RefundedAt, &t.FrozenAt, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("load escrow transaction: %w", err)
	}
	t.Status = models.EscrowStatus(status)

	rows, err := s.pool.Query(ctx, `SELECT op, amount, from_status, to_status, reason, idempotency_key, at
		FROM escrow_ledger_entries WHERE transaction_id = $1 ORDER BY seq`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.LedgerEntry
		var op, from, to string
		if err := rows.Scan(&op, &e.Amount, &from, &to, &e.Reason, &e.IdempotencyKey, &e.At); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Op, e.From, e.To = models.LedgerOp(op), models.EscrowStatus(from), models.EscrowStatus(to)
		t.Log = append(t.Log, e)
	}
	return &t, rows.Err()
}

func (s *postgresLedgerStore) Update(ctx context.Context, t *models.EscrowTransaction) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE escrow_transactions SET
				amount = $3, captured_amount = $4, refunded_amount = $5, status = $6, freeze_reason = $7,
				held_at = $8, captured_at = $9, refunded_at = $10, frozen_at = $11,
				version = version + 1, updated_at = $12
			WHERE id = $1 AND version = $2`,
			t.ID, t.Version, t.Amount, t.CapturedAmount, t.RefundedAmount, string(t.Status), t.FreezeReason,
			t.HeldAt, t.CapturedAt, t.RefundedAt, t.FrozenAt, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update escrow transaction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrVersionConflict
		}

		var stored int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM escrow_ledger_entries WHERE transaction_id = $1`, t.ID).Scan(&stored); err != nil {
			return fmt.Errorf("count ledger entries: %w", err)
		}
		if stored > len(t.Log) {
			return repository.ErrVersionConflict
		}
		return insertEntries(ctx, tx, t.ID, stored, t.Log[stored:])
	})
	if err != nil {
		return err
	}
	t.Version++
	return nil
}

func insertEntries(ctx context.Context, tx pgx.Tx, txID string, offset int, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, e := range entries {
		batch.Queue(`INSERT INTO escrow_ledger_entries
			(transaction_id, seq, op, amount, from_status, to_status, reason, idempotency_key, at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			txID, offset+i, string(e.Op), e.Amount, string(e.From), string(e.To), e.Reason, e.IdempotencyKey, e.At)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}
	return nil
}
