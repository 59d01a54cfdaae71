package repository

import (
	"database/sql"

	"github.com/craftsquare/campaign-engine/internal/model"
)

// ProductRepositoryInterface is the read-only product lookup the campaign
// engine consumes; the catalog itself is owned elsewhere.
type ProductRepositoryInterface interface {
	GetByID(id int) (*model.Product, error)
}

type ProductRepository struct {
	DB *sql.DB
}

// GetByID fetches a product by ID; returns nil when absent
func (r *ProductRepository) GetByID(id int) (*model.Product, error) {
	query := `
        SELECT id, title, description, price_cents, image_url, slug
        FROM products
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var p model.Product
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.ImageURL, &p.Slug); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &p, nil
}

var _ ProductRepositoryInterface = (*ProductRepository)(nil)
