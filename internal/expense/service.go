package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"bookkeeper/internal/events"
	"bookkeeper/internal/models"
)

// AllowedReceiptExtensions lists the accepted receipt file types.
var AllowedReceiptExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"pdf":  true,
}

// Input is the raw form data of an add or edit.
type Input struct {
	Date     string
	Vendor   string
	Category string
	Amount   string
	Notes    string
	Receipt  *Upload
}

// Upload is a receipt file submitted with an Input.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Cleanup reports the outcome of a best-effort receipt removal.
// Err is informational: the primary operation already succeeded.
type Cleanup struct {
	Ref string
	Err error
}

// Failed reports whether a removal was attempted and failed.
func (c Cleanup) Failed() bool { return c.Err != nil }

// Service orchestrates expense mutations across the record and receipt stores.
type Service struct {
	store    Store
	receipts ReceiptStore
	events   events.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for created_at and default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the change event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// NewService creates a Service.
func NewService(store Store, receipts ReceiptStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		receipts: receipts,
		events:   events.Nop{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates in and stores a new expense. A blank date means today.
// Nothing is written when validation fails.
func (s *Service) Add(ctx context.Context, in Input) (string, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return "", err
	}
	date := models.DateOf(s.now())
	if strings.TrimSpace(in.Date) != "" {
		if date, err = models.ParseDate(in.Date); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidDate, in.Date)
		}
	}
	if err := validateUpload(in.Receipt); err != nil {
		return "", err
	}

	e := models.Expense{
		Date:      date,
		Vendor:    models.OptionalText(in.Vendor),
		Category:  models.OptionalText(in.Category),
		Amount:    amount,
		Notes:     models.OptionalText(in.Notes),
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}

	if in.Receipt != nil {
		ref, err := s.putReceipt(ctx, in.Receipt)
		if err != nil {
			return "", err
		}
		e.ReceiptRef = &ref
	}

	id, err := s.store.Insert(ctx, e)
	if err != nil {
		if e.ReceiptRef != nil {
			s.discard(ctx, *e.ReceiptRef)
		}
		return "", fmt.Errorf("insert expense: %w", err)
	}

	s.publish(ctx, events.New(events.ExpenseCreated, id, e.ReceiptText(), s.now()))
	return id, nil
}

// Edit replaces every field of the expense except its id and creation time.
// A blank date keeps the stored date. A new receipt replaces the old one,
// whose removal is reported in the returned Cleanup.
func (s *Service) Edit(ctx context.Context, id string, in Input) (Cleanup, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Cleanup{}, err
	}

	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return Cleanup{}, err
	}
	date := current.Date
	if strings.TrimSpace(in.Date) != "" {
		if date, err = models.ParseDate(in.Date); err != nil {
			return Cleanup{}, fmt.Errorf("%w: %q", ErrInvalidDate, in.Date)
		}
	}
	if err := validateUpload(in.Receipt); err != nil {
		return Cleanup{}, err
	}

	updated := current
	updated.Date = date
	updated.Vendor = models.OptionalText(in.Vendor)
	updated.Category = models.OptionalText(in.Category)
	updated.Amount = amount
	updated.Notes = models.OptionalText(in.Notes)

	var replaced *string
	if in.Receipt != nil {
		ref, err := s.putReceipt(ctx, in.Receipt)
		if err != nil {
			return Cleanup{}, err
		}
		replaced = current.ReceiptRef
		updated.ReceiptRef = &ref
	}

	if err := s.store.Update(ctx, id, updated); err != nil {
		if in.Receipt != nil {
			s.discard(ctx, *updated.ReceiptRef)
		}
		return Cleanup{}, err
	}

	var c Cleanup
	if replaced != nil {
		c = s.removeReceipt(ctx, *replaced)
	}
	s.publish(ctx, events.New(events.ExpenseUpdated, id, updated.ReceiptText(), s.now()))
	return c, nil
}

// Delete removes the expense and then, best-effort, its receipt.
func (s *Service) Delete(ctx context.Context, id string) (Cleanup, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Cleanup{}, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return Cleanup{}, err
	}

	var c Cleanup
	if current.ReceiptRef != nil {
		c = s.removeReceipt(ctx, *current.ReceiptRef)
	}
	s.publish(ctx, events.New(events.ExpenseDeleted, id, current.ReceiptText(), s.now()))
	return c, nil
}

// Get returns one expense.
func (s *Service) Get(ctx context.Context, id string) (models.Expense, error) {
	return s.store.Get(ctx, id)
}

// Receipt returns the receipt file behind ref.
func (s *Service) Receipt(ctx context.Context, ref string) (models.Receipt, error) {
	return s.receipts.Get(ctx, ref)
}

// Categories lists the distinct stored categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.store.DistinctCategories(ctx)
}

func (s *Service) putReceipt(ctx context.Context, u *Upload) (string, error) {
	contentType := u.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if t := mime.TypeByExtension(filepath.Ext(u.Filename)); t != "" {
			contentType = t
		}
	}
	ref, err := s.receipts.Put(ctx, u.Data, u.Filename, contentType)
	if err != nil {
		return "", fmt.Errorf("store receipt: %w", err)
	}
	return ref, nil
}

// removeReceipt deletes a receipt that is no longer referenced.
// A receipt that is already gone counts as removed.
func (s *Service) removeReceipt(ctx context.Context, ref string) Cleanup {
	err := s.receipts.Delete(ctx, ref)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Cleanup{Ref: ref, Err: err}
	}
	return Cleanup{Ref: ref}
}

// discard rolls back a receipt stored for a write that then failed.
func (s *Service) discard(ctx context.Context, ref string) {
	if c := s.removeReceipt(ctx, ref); c.Failed() {
		s.logger.WarnContext(ctx, "failed to discard orphaned receipt", "ref", ref, "error", c.Err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "type", e.Type, "expense_id", e.ExpenseID, "error", err)
	}
}

func validateUpload(u *Upload) error {
	if u == nil {
		return nil
	}
	if !AllowedReceipt(u.Filename) {
		return fmt.Errorf("%w: %q", ErrInvalidFileType, u.Filename)
	}
	return nil
}

// AllowedReceipt reports whether filename has an accepted extension.
func AllowedReceipt(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return AllowedReceiptExtensions[ext]
}
