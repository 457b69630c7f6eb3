package fraud

import (
	"context"
	"database/sql"
	"time"

	"github.com/fideliqr/fideliqr/internal/accrual"
)

// PostgresStore persists security alerts in PostgreSQL and runs the fraud
// queries directly against the purchases table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed fraud store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateAlert(ctx context.Context, a *SecurityAlert) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO security_alerts (id, business_id, customer_id, type, description, reviewed, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		a.ID, a.BusinessID, nullString(a.CustomerID), string(a.Type), a.Description, a.CreatedAt)
	return err
}

func (p *PostgresStore) ListAlerts(ctx context.Context, businessID string, limit int) ([]*SecurityAlert, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, business_id, customer_id, type, description, reviewed, created_at, reviewed_at
		FROM security_alerts WHERE business_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		businessID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*SecurityAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) HasUnreviewedAlert(ctx context.Context, businessID, customerID string, t AlertType) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM security_alerts
			WHERE business_id = $1 AND customer_id = $2 AND type = $3 AND reviewed = FALSE
		)`, businessID, customerID, string(t)).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) ReviewAlert(ctx context.Context, businessID, alertID string, at time.Time) (*SecurityAlert, error) {
	// Idempotent: already-reviewed alerts keep their original reviewed_at.
	row := p.db.QueryRowContext(ctx, `
		UPDATE security_alerts
		SET reviewed = TRUE, reviewed_at = COALESCE(reviewed_at, $1)
		WHERE id = $2 AND business_id = $3
		RETURNING id, business_id, customer_id, type, description, reviewed, created_at, reviewed_at`,
		at, alertID, businessID)

	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	return a, err
}

func (p *PostgresStore) CountPurchasesSince(ctx context.Context, businessID string, since time.Time) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT customer_id, COUNT(*) FROM purchases
		WHERE business_id = $1 AND created_at >= $2
		GROUP BY customer_id`,
		businessID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (p *PostgresStore) MarkPurchaseSuspicious(ctx context.Context, businessID, purchaseID string) (*accrual.Purchase, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE purchases SET suspicious = TRUE
		WHERE id = $1 AND business_id = $2
		RETURNING id, customer_id, business_id, purchase_number, is_reward, suspicious, created_at`,
		purchaseID, businessID)

	pu := &accrual.Purchase{}
	err := row.Scan(&pu.ID, &pu.CustomerID, &pu.BusinessID,
		&pu.PurchaseNumber, &pu.IsReward, &pu.Suspicious, &pu.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, accrual.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return pu, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(s rowScanner) (*SecurityAlert, error) {
	a := &SecurityAlert{}
	var customerID sql.NullString
	var alertType string
	var reviewedAt sql.NullTime
	err := s.Scan(&a.ID, &a.BusinessID, &customerID, &alertType,
		&a.Description, &a.Reviewed, &a.CreatedAt, &reviewedAt)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		a.CustomerID = customerID.String
	}
	a.Type = AlertType(alertType)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
