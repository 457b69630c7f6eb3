package business

import "context"

// Store persists business data.
type Store interface {
	Create(ctx context.Context, b *Business) error
	Get(ctx context.Context, id string) (*Business, error)
	GetBySlug(ctx context.Context, slug string) (*Business, error)
	Update(ctx context.Context, b *Business) error
	List(ctx context.Context) ([]*Business, error)
}
