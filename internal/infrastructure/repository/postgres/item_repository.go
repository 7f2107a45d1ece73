package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) FindByGroupAndURL(ctx context.Context, groupID, outputURL string) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, group_id, subtype, output_url, original_filename, created_at
FROM items
WHERE group_id = $1 AND output_url = $2
`, groupID, outputURL)

	var item domain.Item
	var subtype string
	err := row.Scan(&item.ID, &item.GroupID, &subtype, &item.OutputURL, &item.OriginalFilename, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrItemNotFound, "find item by group and url", err)
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	item.Subtype = domain.Subtype(subtype)
	return &item, nil
}

func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO items (id, group_id, subtype, output_url, original_filename, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, item.ID, item.GroupID, string(item.Subtype), item.OutputURL, item.OriginalFilename, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}
