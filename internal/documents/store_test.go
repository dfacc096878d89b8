package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an in-memory Store used by the engine tests. The mutex keeps
// it safe for the concurrency tests; counter CAS semantics mirror the SQL
// implementation.
type memoryStore struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*SalesDocument
	counters map[string]int64
	prefixes map[string]string

	// atomicCounter enables the server-side increment fast path.
	atomicCounter bool
	// loseCASRaces makes the next N conditional counter updates report a lost
	// race without changing the counter.
	loseCASRaces int
	// counterErr, when set, fails every counter operation.
	counterErr error
	// failUpdate, when set, intercepts UpdateDocument calls.
	failUpdate func(id uuid.UUID, patch Patch) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		docs:     make(map[uuid.UUID]*SalesDocument),
		counters: make(map[string]int64),
		prefixes: make(map[string]string),
	}
}

func counterKey(businessID int64, family Family) string {
	return fmt.Sprintf("%d/%s", businessID, family)
}

func (m *memoryStore) put(doc *SalesDocument) *SalesDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	clone := *doc
	m.docs[doc.ID] = &clone
	return doc
}

func (m *memoryStore) GetDocument(ctx context.Context, id uuid.UUID) (*SalesDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (m *memoryStore) FindByReverseLink(ctx context.Context, businessID int64, docType DocType, linkField Field, targetID uuid.UUID) (*SalesDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *SalesDocument
	for _, doc := range m.docs {
		if doc.BusinessID != businessID || doc.Type != docType || doc.Status == StatusVoided {
			continue
		}
		link := linkValue(doc, linkField)
		if link == nil || *link != targetID {
			continue
		}
		if best == nil || doc.CreatedAt.After(best.CreatedAt) {
			best = doc
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	clone := *best
	return &clone, nil
}

func linkValue(doc *SalesDocument, f Field) *uuid.UUID {
	switch f {
	case FieldConvertedToInvoiceID:
		return doc.ConvertedToInvoiceID
	case FieldSourceQuotationID:
		return doc.SourceQuotationID
	case FieldRelatedReceiptID:
		return doc.RelatedReceiptID
	case FieldRelatedInvoiceID:
		return doc.RelatedInvoiceID
	}
	return nil
}

func (m *memoryStore) InsertDocument(ctx context.Context, doc *SalesDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.docs {
		if existing.BusinessID == doc.BusinessID && existing.DocNumber == doc.DocNumber {
			return ErrDuplicateNumber
		}
	}
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *memoryStore) UpdateDocument(ctx context.Context, id uuid.UUID, patch Patch) (int64, error) {
	if m.failUpdate != nil {
		if err := m.failUpdate(id, patch); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return 0, nil
	}
	for f, v := range patch {
		applyField(doc, f, v)
	}
	doc.UpdatedAt = time.Now()
	return 1, nil
}

func applyField(doc *SalesDocument, f Field, v any) {
	switch f {
	case FieldStatus:
		doc.Status = v.(Status)
	case FieldIssueDate:
		doc.IssueDate = v.(time.Time)
	case FieldDueDate:
		doc.DueDate = timePtr(v)
	case FieldSubtotal:
		doc.Subtotal = v.(float64)
	case FieldTaxAmount:
		doc.TaxAmount = v.(float64)
	case FieldTotalAmount:
		doc.TotalAmount = v.(float64)
	case FieldNotes:
		if v == nil {
			doc.Notes = nil
		} else {
			s := v.(string)
			doc.Notes = &s
		}
	case FieldConvertedToInvoiceID:
		doc.ConvertedToInvoiceID = uuidValuePtr(v)
	case FieldSourceQuotationID:
		doc.SourceQuotationID = uuidValuePtr(v)
	case FieldRelatedReceiptID:
		doc.RelatedReceiptID = uuidValuePtr(v)
	case FieldRelatedInvoiceID:
		doc.RelatedInvoiceID = uuidValuePtr(v)
	case FieldAcceptedAt:
		doc.AcceptedAt = timePtr(v)
	case FieldPaidAt:
		doc.PaidAt = timePtr(v)
	case FieldVoidedAt:
		doc.VoidedAt = timePtr(v)
	}
}

func timePtr(v any) *time.Time {
	if v == nil {
		return nil
	}
	t := v.(time.Time)
	return &t
}

func uuidValuePtr(v any) *uuid.UUID {
	if v == nil {
		return nil
	}
	id := v.(uuid.UUID)
	return &id
}

func (m *memoryStore) ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]SalesDocument, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SalesDocument
	for _, doc := range m.docs {
		if doc.BusinessID != req.BusinessID {
			continue
		}
		if req.Type != nil && doc.Type != *req.Type {
			continue
		}
		if req.Status != nil && doc.Status != *req.Status {
			continue
		}
		out = append(out, *doc)
	}
	total := len(out)
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, total, nil
}

func (m *memoryStore) MaxDocNumber(ctx context.Context, businessID int64, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best string
	for _, doc := range m.docs {
		if doc.BusinessID != businessID {
			continue
		}
		n := doc.DocNumber
		if len(n) < len(prefix) || n[:len(prefix)] != prefix {
			continue
		}
		if best == "" || len(n) > len(best) || (len(n) == len(best) && n > best) {
			best = n
		}
	}
	if best == "" {
		return "", ErrNotFound
	}
	return best, nil
}

func (m *memoryStore) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]SalesDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SalesDocument
	for _, doc := range m.docs {
		switch doc.Type {
		case TypeInvoice, TypeCreditNote, TypeDebitNote:
		default:
			continue
		}
		if doc.Status != StatusPendingPayment || doc.DueDate == nil || !doc.DueDate.Before(asOf) {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (m *memoryStore) GetCounter(ctx context.Context, businessID int64, family Family) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counterErr != nil {
		return 0, m.counterErr
	}
	value, ok := m.counters[counterKey(businessID, family)]
	if !ok {
		return 0, ErrNotFound
	}
	return value, nil
}

func (m *memoryStore) InitCounter(ctx context.Context, businessID int64, family Family, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counterErr != nil {
		return m.counterErr
	}
	key := counterKey(businessID, family)
	if _, ok := m.counters[key]; ok {
		return ErrDuplicateNumber
	}
	m.counters[key] = value
	return nil
}

func (m *memoryStore) ConditionalUpdateCounter(ctx context.Context, businessID int64, family Family, expected, next int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counterErr != nil {
		return 0, m.counterErr
	}
	if m.loseCASRaces > 0 {
		m.loseCASRaces--
		return 0, nil
	}
	key := counterKey(businessID, family)
	if m.counters[key] != expected {
		return 0, nil
	}
	m.counters[key] = next
	return 1, nil
}

func (m *memoryStore) NextCounterValue(ctx context.Context, businessID int64, family Family) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counterErr != nil {
		return 0, m.counterErr
	}
	if !m.atomicCounter {
		return 0, errAtomicUnsupported
	}
	key := counterKey(businessID, family)
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryStore) GetNumberingPrefix(ctx context.Context, businessID int64, family Family) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix, ok := m.prefixes[counterKey(businessID, family)]
	if !ok {
		return "", ErrNotFound
	}
	return prefix, nil
}
