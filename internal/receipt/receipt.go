package receipt

import (
	"time"

	"github.com/receiptwise/receiptwise/internal/extraction"
)

// Receipt is the persisted record for one uploaded receipt image. Exactly
// one Receipt is created per successful extraction; edits replace the
// extracted fields and recompute IsSumValid, and there is no delete.
type Receipt struct {
	ID         string            `json:"id"`
	ImageURL   string            `json:"imageUrl"`
	Date       *string           `json:"date"`
	Currency   *string           `json:"currency"`
	VendorName *string           `json:"vendorName"`
	Items      []extraction.Item `json:"items"`
	Gst        *float64          `json:"gst"`
	Total      *float64          `json:"total"`

	// IsSumValid is derived from the other fields at every write; it is
	// never accepted from a provider or a caller.
	IsSumValid bool `json:"isSumValid"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
