package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/receiptwise/receiptwise/internal/reconcile"
)

// Extractor is the orchestration layer over the provider registry: it picks
// an adapter, makes a single extraction attempt, validates the shape of
// what came back, and computes the sum-validity flag. Persistence is the
// caller's job.
type Extractor struct {
	registry *Registry
}

// NewExtractor creates an Extractor over the given registry.
func NewExtractor(registry *Registry) *Extractor {
	return &Extractor{registry: registry}
}

// Extract resolves a provider, invokes it once, and normalizes the result.
// The returned bool is the reconciliation flag: whether line items plus gst
// equal the stated total. Provider failure kinds propagate unchanged so
// callers can distinguish a missing credential from bad model output; no
// retries happen here.
func (e *Extractor) Extract(ctx context.Context, image []byte, mimeType string, providerName string) (*ExtractedReceipt, bool, error) {
	provider, err := e.registry.Resolve(providerName)
	if err != nil {
		return nil, false, err
	}

	slog.Info("Extracting receipt", "provider", provider.Name(), "mime_type", mimeType, "size", len(image))

	doc, err := provider.ExtractReceipt(ctx, image, mimeType)
	if err != nil {
		return nil, false, err
	}

	receipt, err := Normalize(doc)
	if err != nil {
		return nil, false, err
	}

	sumValid := reconcile.Consistent(receipt.Total, receipt.Gst, receipt.ItemCosts())
	return receipt, sumValid, nil
}

// Providers returns the registered provider names for client-facing
// pickers.
func (e *Extractor) Providers() []string {
	return e.registry.Names()
}

// DefaultProvider returns the name used when a caller does not pick one.
func (e *Extractor) DefaultProvider() string {
	return e.registry.Default()
}

// Normalize validates the structure of a raw extraction document and
// converts it to an ExtractedReceipt. Every field-level violation is
// collected into one ShapeError rather than stopping at the first. The same
// function gates both AI output at creation time and user corrections at
// edit time.
func Normalize(doc Document) (*ExtractedReceipt, error) {
	var violations []string
	receipt := &ExtractedReceipt{}

	receipt.Date = optionalString(doc, "date", &violations)
	receipt.Currency = optionalString(doc, "currency", &violations)
	receipt.VendorName = optionalString(doc, "vendorName", &violations)
	receipt.Gst = optionalNumber(doc, "gst", &violations)
	receipt.Total = optionalNumber(doc, "total", &violations)
	receipt.Items = normalizeItems(doc["items"], &violations)

	if len(violations) > 0 {
		return nil, &ShapeError{Violations: violations}
	}
	return receipt, nil
}

func optionalString(doc Document, field string, violations *[]string) *string {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		*violations = append(*violations, fmt.Sprintf("%s: expected string or null", field))
		return nil
	}
	return &s
}

func optionalNumber(doc Document, field string, violations *[]string) *float64 {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil
	}
	n, ok := v.(float64)
	if !ok {
		*violations = append(*violations, fmt.Sprintf("%s: expected number or null", field))
		return nil
	}
	return &n
}

func normalizeItems(v any, violations *[]string) []Item {
	// items is never null: absent fields elsewhere map to nil, but the
	// items field must always be an array, possibly empty.
	raw, ok := v.([]any)
	if !ok {
		*violations = append(*violations, "items: expected array")
		return []Item{}
	}

	items := make([]Item, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			*violations = append(*violations, fmt.Sprintf("items[%d]: expected object", i))
			continue
		}

		item := Item{}
		name, ok := obj["name"].(string)
		if !ok || name == "" {
			*violations = append(*violations, fmt.Sprintf("items[%d].name: expected non-empty string", i))
		} else {
			item.Name = name
		}

		cost, ok := obj["cost"].(float64)
		switch {
		case !ok:
			*violations = append(*violations, fmt.Sprintf("items[%d].cost: expected number", i))
		case cost < 0:
			*violations = append(*violations, fmt.Sprintf("items[%d].cost: must not be negative", i))
		default:
			item.Cost = cost
		}

		items = append(items, item)
	}
	return items
}
