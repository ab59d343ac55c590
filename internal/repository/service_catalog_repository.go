package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ServiceCatalogRepository reads catalog items referenced by tickets.
type ServiceCatalogRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.ServiceItem, error)
}

type serviceCatalogRepository struct {
	pool *pgxpool.Pool
}

// NewServiceCatalogRepository builds repository.
func NewServiceCatalogRepository(pool *pgxpool.Pool) ServiceCatalogRepository {
	return &serviceCatalogRepository{pool: pool}
}

func (r *serviceCatalogRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.ServiceItem, error) {
	if len(ids) == 0 {
		return []domain.ServiceItem{}, nil
	}
	const query = `
        SELECT id, name, active, created_at
        FROM service_items WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ServiceItem
	for rows.Next() {
		var item domain.ServiceItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Active, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
