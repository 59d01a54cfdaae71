package repository

import (
	"database/sql"

	"github.com/craftsquare/campaign-engine/internal/model"
)

// UserRepositoryInterface is the slice of the user directory the campaign
// engine needs: enumerate everyone a campaign fans out to.
type UserRepositoryInterface interface {
	ListAll() ([]model.User, error)
}

type UserRepository struct {
	DB *sql.DB
}

// ListAll fetches all registered users (id, name, email)
func (r *UserRepository) ListAll() ([]model.User, error) {
	query := `
        SELECT id, name, email
        FROM users
        ORDER BY id
    `
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
