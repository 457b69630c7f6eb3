package business

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists businesses in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed business store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, b *Business) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, slug, owner_email, reward_threshold, cooldown_minutes,
			email_enabled, notify_email, telegram_enabled, telegram_token, telegram_chat_id,
			active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.Name, b.Slug, b.OwnerEmail,
		b.Settings.RewardThreshold, b.Settings.CooldownMinutes,
		b.Settings.EmailEnabled, b.Settings.NotifyEmail,
		b.Settings.TelegramEnabled, b.Settings.TelegramToken, b.Settings.TelegramChatID,
		b.Active, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

const businessColumns = `id, name, slug, owner_email, reward_threshold, cooldown_minutes,
	email_enabled, notify_email, telegram_enabled, telegram_token, telegram_chat_id,
	active, created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Business, error) {
	return scanBusiness(p.db.QueryRowContext(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
}

func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Business, error) {
	return scanBusiness(p.db.QueryRowContext(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug))
}

func (p *PostgresStore) Update(ctx context.Context, b *Business) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE businesses SET name = $1, owner_email = $2, reward_threshold = $3,
			cooldown_minutes = $4, email_enabled = $5, notify_email = $6,
			telegram_enabled = $7, telegram_token = $8, telegram_chat_id = $9,
			active = $10, updated_at = $11
		WHERE id = $12`,
		b.Name, b.OwnerEmail,
		b.Settings.RewardThreshold, b.Settings.CooldownMinutes,
		b.Settings.EmailEnabled, b.Settings.NotifyEmail,
		b.Settings.TelegramEnabled, b.Settings.TelegramToken, b.Settings.TelegramChatID,
		b.Active, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBusinessNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Business, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+businessColumns+` FROM businesses ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Business
	for rows.Next() {
		b, err := scanBusinessRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBusinessFrom(s rowScanner) (*Business, error) {
	b := &Business{}
	var notifyEmail, telegramToken, telegramChatID sql.NullString
	err := s.Scan(&b.ID, &b.Name, &b.Slug, &b.OwnerEmail,
		&b.Settings.RewardThreshold, &b.Settings.CooldownMinutes,
		&b.Settings.EmailEnabled, &notifyEmail,
		&b.Settings.TelegramEnabled, &telegramToken, &telegramChatID,
		&b.Active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if notifyEmail.Valid {
		b.Settings.NotifyEmail = notifyEmail.String
	}
	if telegramToken.Valid {
		b.Settings.TelegramToken = telegramToken.String
	}
	if telegramChatID.Valid {
		b.Settings.TelegramChatID = telegramChatID.String
	}
	return b, nil
}

func scanBusiness(row *sql.Row) (*Business, error) {
	b, err := scanBusinessFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrBusinessNotFound
	}
	return b, err
}

func scanBusinessRows(rows *sql.Rows) (*Business, error) {
	return scanBusinessFrom(rows)
}

var _ Store = (*PostgresStore)(nil)
