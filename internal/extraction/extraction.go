// Package extraction turns receipt images into structured data by way of
// pluggable AI vision providers. Each provider adapter hides its backend's
// prompt, schema and response format behind one capability: produce the
// decoded JSON document the model returned. The Extractor normalizes that
// document into an ExtractedReceipt and checks its arithmetic.
package extraction

import "context"

// Item is a single receipt line item.
type Item struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

// ExtractedReceipt is the normalized output of a provider. Optional fields
// are pointers so an absent value stays distinguishable from a zero; Items
// is always non-nil, possibly empty.
type ExtractedReceipt struct {
	Date       *string  `json:"date"`
	Currency   *string  `json:"currency"`
	VendorName *string  `json:"vendorName"`
	Items      []Item   `json:"items"`
	Gst        *float64 `json:"gst"`
	Total      *float64 `json:"total"`
}

// ItemCosts returns the cost of every line item, in extraction order.
func (r *ExtractedReceipt) ItemCosts() []float64 {
	costs := make([]float64, len(r.Items))
	for i, item := range r.Items {
		costs[i] = item.Cost
	}
	return costs
}

// Document is the raw JSON object a provider's model produced, decoded but
// not yet validated. Field types are whatever the model emitted.
type Document map[string]any

// Provider adapts one AI backend to receipt extraction.
type Provider interface {
	// ExtractReceipt sends the image to the backend and returns the JSON
	// document embedded in its reply. Implementations make exactly one
	// attempt and never invent data for absent fields.
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) (Document, error)

	// Name returns the registry key this provider is known by.
	Name() string

	// Close releases any client resources.
	Close() error
}
