// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrProductNotFound marks a missing advertised product
type ErrProductNotFound struct {
	ProductID int
}

func (e *ErrProductNotFound) Error() string {
	return fmt.Sprintf("product with ID %d not found", e.ProductID)
}

func NewProductNotFound(id int) error {
	return &ErrProductNotFound{ProductID: id}
}

// ErrNoRecipients is returned when a campaign is initiated while the user
// directory is empty. No campaign row is created in that case.
var ErrNoRecipients = errors.New("no registered users to send to")

// IsNotFound reports whether err is a campaign or product not-found error.
func IsNotFound(err error) bool {
	var cnf *ErrCampaignNotFound
	var pnf *ErrProductNotFound
	return errors.As(err, &cnf) || errors.As(err, &pnf)
}
