package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/tx"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.User, error) {
	q := tx.Executor(ctx, s.db)

	user := &domain.User{}
	err := q.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return user, nil
}
