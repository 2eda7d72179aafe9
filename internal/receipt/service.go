package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/receiptwise/receiptwise/internal/extraction"
	"github.com/receiptwise/receiptwise/internal/reconcile"
)

// EditPolicy decides what happens when a user-submitted correction does not
// reconcile. This is a deliberate configuration choice, not a default that
// fell out of the code: the two policies both exist in the wild.
type EditPolicy string

const (
	// EditPolicyReject refuses to persist an inconsistent edit; the caller
	// gets the discrepancy back and nothing is written.
	EditPolicyReject EditPolicy = "reject"

	// EditPolicyFlag persists the inconsistent edit with IsSumValid=false.
	EditPolicyFlag EditPolicy = "flag"
)

// InconsistentError rejects an edit whose items plus tax do not equal the
// stated total. Computed and Stated are cent-rounded sums for the caller to
// show.
type InconsistentError struct {
	Computed float64
	Stated   *float64
}

func (e *InconsistentError) Error() string {
	if e.Stated == nil {
		return fmt.Sprintf("cannot save: no total stated (items + tax = %.2f)", e.Computed)
	}
	return fmt.Sprintf("cannot save: items + tax (%.2f) does not equal total (%.2f)", e.Computed, *e.Stated)
}

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	db          DB
	storage     Storage
	extractor   *extraction.Extractor
	editPolicy  EditPolicy
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, extractor *extraction.Extractor, editPolicy EditPolicy) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		editPolicy:  editPolicy,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor *extraction.Extractor, editPolicy EditPolicy, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		editPolicy:  editPolicy,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Create stores the image, extracts structured data through the chosen
// provider, and persists the resulting receipt with its derived sum flag.
// Extraction failure kinds pass through wrapped so callers can still pick
// the right user-facing message.
func (s *Service) Create(ctx context.Context, data []byte, mimeType string, providerName string) (*Receipt, error) {
	imageURL, err := s.storage.Store(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}
	slog.Info("Stored receipt image", "url", imageURL)

	extracted, sumValid, err := s.extractor.Extract(ctx, data, mimeType, providerName)
	if err != nil {
		slog.Error("Failed to extract receipt",
			"mime_type", mimeType,
			"image_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	now := s.timeSource.Now()
	receipt := &Receipt{
		ID:         s.idGenerator.Generate(),
		ImageURL:   imageURL,
		Date:       extracted.Date,
		Currency:   extracted.Currency,
		VendorName: extracted.VendorName,
		Items:      extracted.Items,
		Gst:        extracted.Gst,
		Total:      extracted.Total,
		IsSumValid: sumValid,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}

	return receipt, nil
}

// Get retrieves a receipt by ID
func (s *Service) Get(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// List returns all receipts
func (s *Service) List() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// Update applies a user correction to a stored receipt. The fields replace
// the extracted ones wholesale and IsSumValid is recomputed with the same
// rule used at creation. Under the reject policy an inconsistent edit fails
// with InconsistentError and nothing is persisted; under the flag policy it
// is saved with IsSumValid=false.
func (s *Service) Update(id string, fields *extraction.ExtractedReceipt) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt for update: %w", err)
	}

	costs := fields.ItemCosts()
	sumValid := reconcile.Consistent(fields.Total, fields.Gst, costs)
	if !sumValid && s.editPolicy == EditPolicyReject {
		return nil, &InconsistentError{
			Computed: reconcile.Sum(costs, fields.Gst),
			Stated:   fields.Total,
		}
	}

	receipt.Date = fields.Date
	receipt.Currency = fields.Currency
	receipt.VendorName = fields.VendorName
	receipt.Items = fields.Items
	receipt.Gst = fields.Gst
	receipt.Total = fields.Total
	receipt.IsSumValid = sumValid
	receipt.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}

	return receipt, nil
}

// Providers returns the registered provider names for client pickers.
func (s *Service) Providers() []string {
	return s.extractor.Providers()
}

// DefaultProvider returns the provider used when a caller picks none.
func (s *Service) DefaultProvider() string {
	return s.extractor.DefaultProvider()
}
