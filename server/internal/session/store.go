package session

import (
	"context"
)

type Store interface {
	Get(ctx context.Context, id string) (*Dialog, error)
	Save(ctx context.Context, d *Dialog) error
	Delete(ctx context.Context, id string) (*Dialog, error)
	List(ctx context.Context) ([]*Dialog, error)
}
