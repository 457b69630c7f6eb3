package customer

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists customers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed customer store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const customerColumns = `id, business_id, name, email, scan_code,
	total_purchases, pending_rewards, redeemed_rewards,
	blocked, block_reason, blocked_at, active, created_at`

func (p *PostgresStore) Create(ctx context.Context, c *Customer) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO customers (id, business_id, name, email, scan_code,
			total_purchases, pending_rewards, redeemed_rewards,
			blocked, block_reason, blocked_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.BusinessID, c.Name, c.Email, c.ScanCode,
		c.TotalPurchases, c.PendingRewards, c.RedeemedRewards,
		c.Blocked, nullString(c.BlockReason), c.BlockedAt, c.Active, c.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "customers_scan_code_key" {
				return ErrScanCodeTaken
			}
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, businessID, id string) (*Customer, error) {
	return scanCustomer(p.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND business_id = $2`,
		id, businessID))
}

func (p *PostgresStore) GetByScanCode(ctx context.Context, businessID, scanCode string) (*Customer, error) {
	return scanCustomer(p.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE scan_code = $1 AND business_id = $2`,
		scanCode, businessID))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, businessID, email string) (*Customer, error) {
	return scanCustomer(p.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE business_id = $1 AND email = $2`,
		businessID, email))
}

func (p *PostgresStore) Update(ctx context.Context, c *Customer) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE customers SET name = $1, email = $2, scan_code = $3,
			total_purchases = $4, pending_rewards = $5, redeemed_rewards = $6,
			blocked = $7, block_reason = $8, blocked_at = $9, active = $10
		WHERE id = $11`,
		c.Name, c.Email, c.ScanCode,
		c.TotalPurchases, c.PendingRewards, c.RedeemedRewards,
		c.Blocked, nullString(c.BlockReason), c.BlockedAt, c.Active, c.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrScanCodeTaken
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateCounters(ctx context.Context, id string, totalPurchases, pendingRewards, redeemedRewards int) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE customers SET total_purchases = $1, pending_rewards = $2, redeemed_rewards = $3
		WHERE id = $4`,
		totalPurchases, pendingRewards, redeemedRewards, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, businessID string) ([]*Customer, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE business_id = $1 ORDER BY created_at`,
		businessID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Customer
	for rows.Next() {
		c, err := scanCustomerFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomerFrom(s rowScanner) (*Customer, error) {
	c := &Customer{}
	var blockReason sql.NullString
	var blockedAt sql.NullTime
	err := s.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.ScanCode,
		&c.TotalPurchases, &c.PendingRewards, &c.RedeemedRewards,
		&c.Blocked, &blockReason, &blockedAt, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if blockReason.Valid {
		c.BlockReason = blockReason.String
	}
	if blockedAt.Valid {
		t := blockedAt.Time
		c.BlockedAt = &t
	}
	return c, nil
}

func scanCustomer(row *sql.Row) (*Customer, error) {
	c, err := scanCustomerFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrCustomerNotFound
	}
	return c, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
