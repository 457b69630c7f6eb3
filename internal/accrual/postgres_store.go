package accrual

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fideliqr/fideliqr/internal/customer"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed accrual store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record inserts the purchase and bumps the customer counters in one
// transaction. The customer row is locked with FOR UPDATE, then the block
// flag and the cooldown are re-validated against the latest committed
// purchase, so two near-simultaneous scans serialize and the loser gets the
// cooldown rejection instead of a duplicate purchase.
func (p *PostgresStore) Record(ctx context.Context, params RecordParams) (*Purchase, *customer.Customer, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cust := &customer.Customer{}
	var blockReason sql.NullString
	var blockedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, business_id, name, email, scan_code,
			total_purchases, pending_rewards, redeemed_rewards,
			blocked, block_reason, blocked_at, active, created_at
		FROM customers
		WHERE id = $1 AND business_id = $2
		FOR UPDATE`,
		params.CustomerID, params.BusinessID,
	).Scan(&cust.ID, &cust.BusinessID, &cust.Name, &cust.Email, &cust.ScanCode,
		&cust.TotalPurchases, &cust.PendingRewards, &cust.RedeemedRewards,
		&cust.Blocked, &blockReason, &blockedAt, &cust.Active, &cust.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, customer.ErrCustomerNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock customer: %w", err)
	}
	if blockReason.Valid {
		cust.BlockReason = blockReason.String
	}
	if blockedAt.Valid {
		t := blockedAt.Time
		cust.BlockedAt = &t
	}

	if cust.Blocked {
		return nil, nil, &BlockedError{Reason: cust.BlockReason}
	}

	// Cooldown re-check under the row lock.
	var lastAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM purchases WHERE customer_id = $1`,
		cust.ID,
	).Scan(&lastAt)
	if err != nil {
		return nil, nil, fmt.Errorf("load latest purchase: %w", err)
	}
	if lastAt.Valid {
		if ok, remaining := CheckCooldown(&lastAt.Time, params.Now, params.CooldownWindow); !ok {
			return nil, nil, &CooldownError{Remaining: remaining}
		}
	}

	newTotal := cust.TotalPurchases + 1
	isReward := params.Threshold >= 1 && newTotal%params.Threshold == 0

	rewardBump := 0
	if isReward {
		rewardBump = 1
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE customers SET total_purchases = $1, pending_rewards = pending_rewards + $2
		WHERE id = $3`,
		newTotal, rewardBump, cust.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("update counters: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, customer_id, business_id, purchase_number, is_reward, suspicious, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		params.PurchaseID, cust.ID, params.BusinessID, newTotal, isReward, params.Now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	cust.TotalPurchases = newTotal
	if isReward {
		cust.PendingRewards++
	}

	return &Purchase{
		ID:             params.PurchaseID,
		CustomerID:     cust.ID,
		BusinessID:     params.BusinessID,
		PurchaseNumber: newTotal,
		IsReward:       isReward,
		CreatedAt:      params.Now,
	}, cust, nil
}

// Redeem consumes one pending reward. The guarded UPDATE makes the decrement
// atomic; no explicit lock needed.
func (p *PostgresStore) Redeem(ctx context.Context, businessID, customerID string) (*customer.Customer, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE customers
		SET pending_rewards = pending_rewards - 1, redeemed_rewards = redeemed_rewards + 1
		WHERE id = $1 AND business_id = $2 AND pending_rewards > 0
		RETURNING id, business_id, name, email, scan_code,
			total_purchases, pending_rewards, redeemed_rewards,
			blocked, block_reason, blocked_at, active, created_at`,
		customerID, businessID)

	cust := &customer.Customer{}
	var blockReason sql.NullString
	var blockedAt sql.NullTime
	err := row.Scan(&cust.ID, &cust.BusinessID, &cust.Name, &cust.Email, &cust.ScanCode,
		&cust.TotalPurchases, &cust.PendingRewards, &cust.RedeemedRewards,
		&cust.Blocked, &blockReason, &blockedAt, &cust.Active, &cust.CreatedAt)
	if err == sql.ErrNoRows {
		// Distinguish "no reward" from "no customer".
		var exists bool
		if err := p.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND business_id = $2)`,
			customerID, businessID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, customer.ErrCustomerNotFound
		}
		return nil, ErrNoPendingReward
	}
	if err != nil {
		return nil, err
	}
	if blockReason.Valid {
		cust.BlockReason = blockReason.String
	}
	if blockedAt.Valid {
		t := blockedAt.Time
		cust.BlockedAt = &t
	}
	return cust, nil
}

func (p *PostgresStore) LastPurchaseTime(ctx context.Context, customerID string) (*time.Time, error) {
	var lastAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM purchases WHERE customer_id = $1`,
		customerID).Scan(&lastAt)
	if err != nil {
		return nil, err
	}
	if !lastAt.Valid {
		return nil, nil
	}
	t := lastAt.Time
	return &t, nil
}

func (p *PostgresStore) ListPurchases(ctx context.Context, businessID, customerID string, limit int) ([]*Purchase, error) {
	query := `
		SELECT id, customer_id, business_id, purchase_number, is_reward, suspicious, created_at
		FROM purchases WHERE business_id = $1`
	args := []any{businessID}
	if customerID != "" {
		query += ` AND customer_id = $2`
		args = append(args, customerID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Purchase
	for rows.Next() {
		pu := &Purchase{}
		if err := rows.Scan(&pu.ID, &pu.CustomerID, &pu.BusinessID,
			&pu.PurchaseNumber, &pu.IsReward, &pu.Suspicious, &pu.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pu)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
