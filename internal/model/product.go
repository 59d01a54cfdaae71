// internal/model/product.go
package model

type Product struct {
	ID          int    `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	PriceCents  int    `db:"price_cents" json:"price_cents"`
	ImageURL    string `db:"image_url" json:"image_url"`
	Slug        string `db:"slug" json:"slug"`
}
