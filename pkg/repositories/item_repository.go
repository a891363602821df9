// Package repositories implements the storage collaborator interfaces over
// PostgreSQL. The ledger treats every failure here as an upstream
// availability problem, never as a reason to reject a mutation.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/database"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

// ItemRepository defines storage access for inventory items.
type ItemRepository interface {
	LoadAll(ctx context.Context) ([]*models.InventoryItem, error)
	Save(ctx context.Context, item *models.InventoryItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type itemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db *database.DB) ItemRepository {
	return &itemRepository{db: db}
}

// LoadAll returns every stored item. Called once at startup to seed the
// ledger's in-memory state.
func (r *itemRepository) LoadAll(ctx context.Context) ([]*models.InventoryItem, error) {
	query := `
		SELECT id, name, category, quantity, allocated, status, unit_price, used_in, created_at, updated_at
		FROM bench_items
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer rows.Close()

	var items []*models.InventoryItem
	for rows.Next() {
		var item models.InventoryItem
		var usedIn []byte

		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Category,
			&item.Quantity,
			&item.Allocated,
			&item.Status,
			&item.UnitPrice,
			&usedIn,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		if err := json.Unmarshal(usedIn, &item.UsedIn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage history: %w", err)
		}

		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	return items, nil
}

// Save upserts an item. Upsert keeps write-behind retries idempotent.
func (r *itemRepository) Save(ctx context.Context, item *models.InventoryItem) error {
	usedIn, err := json.Marshal(item.UsedIn)
	if err != nil {
		return fmt.Errorf("failed to marshal usage history: %w", err)
	}
	if item.UsedIn == nil {
		usedIn = []byte("[]")
	}

	query := `
		INSERT INTO bench_items (id, name, category, quantity, allocated, status, unit_price, used_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    category = EXCLUDED.category,
		    quantity = EXCLUDED.quantity,
		    allocated = EXCLUDED.allocated,
		    status = EXCLUDED.status,
		    unit_price = EXCLUDED.unit_price,
		    used_in = EXCLUDED.used_in,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		item.ID,
		item.Name,
		item.Category,
		item.Quantity,
		item.Allocated,
		item.Status,
		item.UnitPrice,
		usedIn,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}

	return nil
}

// Delete removes an item by ID.
func (r *itemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM bench_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure itemRepository implements ItemRepository at compile time.
var _ ItemRepository = (*itemRepository)(nil)
