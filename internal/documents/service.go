package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowbooks/flowbooks/internal/observability"
	"github.com/flowbooks/flowbooks/internal/shared"
)

// Service orchestrates the document lifecycle: creation with numbering and
// chain linking, guarded edits and transitions, and void with cascaded status
// reversal. The store offers single-document conditional updates only, so
// cascades are applied step by step and partial failure is reported rather
// than rolled back.
type Service struct {
	store     Store
	allocator *Allocator
	timeline  *TimelineResolver
	audit     *shared.AuditLogger
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewService builds the orchestrator. audit and metrics may be nil.
func NewService(store Store, allocator *Allocator, timeline *TimelineResolver, audit *shared.AuditLogger, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		allocator: allocator,
		timeline:  timeline,
		audit:     audit,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Create allocates a number, inserts the document, and links it to its source
// when one is given. Creating an invoice from a quotation that already has a
// live invoice returns that invoice instead of a duplicate. The new document's
// back-link is written atomically with the insert; the source's forward link
// is best-effort because the resolver's reverse scan covers a lost write.
func (s *Service) Create(ctx context.Context, req CreateDocumentRequest) (*SalesDocument, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown document type %q", req.Type)
	}

	var source *SalesDocument
	if req.SourceDocID != nil {
		var err error
		source, err = s.store.GetDocument(ctx, *req.SourceDocID)
		if err != nil {
			return nil, fmt.Errorf("get source document: %w", err)
		}
		if source.BusinessID != req.BusinessID {
			return nil, fmt.Errorf("source document belongs to another business")
		}
		if expected := successorType(source.Type); expected != req.Type {
			return nil, fmt.Errorf("%w: cannot create %s from %s", ErrInvalidTransition, req.Type, source.Type)
		}

		tl, err := s.timeline.Resolve(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("resolve source timeline: %w", err)
		}
		if successor := liveSuccessor(source, tl); successor != nil {
			if req.Type == TypeInvoice && successor.Type == TypeInvoice {
				// Already converted; hand back the live invoice instead of
				// violating the one-live-successor invariant.
				return successor, nil
			}
			return nil, ErrSourceLocked
		}
	}

	docNumber, err := s.allocator.Allocate(ctx, req.BusinessID, req.Type, req.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("allocate doc number: %w", err)
	}

	doc := &SalesDocument{
		ID:          uuid.New(),
		BusinessID:  req.BusinessID,
		Type:        req.Type,
		DocNumber:   docNumber,
		Status:      InitialStatus(req.Type),
		IssueDate:   req.IssueDate,
		DueDate:     req.DueDate,
		Subtotal:    req.Subtotal,
		TaxAmount:   req.TaxAmount,
		TotalAmount: req.TotalAmount,
		Notes:       req.Notes,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if source != nil {
		switch req.Type {
		case TypeInvoice:
			doc.SourceQuotationID = &source.ID
		case TypeReceipt:
			doc.RelatedInvoiceID = &source.ID
		}
	}

	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	if source != nil {
		patch := Patch{}
		switch req.Type {
		case TypeInvoice:
			patch[FieldConvertedToInvoiceID] = doc.ID
		case TypeReceipt:
			patch[FieldRelatedReceiptID] = doc.ID
		}
		if _, err := s.store.UpdateDocument(ctx, source.ID, patch); err != nil {
			// Tolerated: the reverse scan reconstructs this edge.
			s.logger.Warn("forward link write failed",
				slog.String("source_id", source.ID.String()),
				slog.String("document_id", doc.ID.String()),
				slog.Any("error", err))
		}
	}

	s.recordAudit(ctx, doc, "document.created", map[string]any{"doc_number": doc.DocNumber})
	return doc, nil
}

// Edit applies a partial update. Fails with ErrForwardLocked while a live
// successor exists. DocNumber and type are never touched.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, req EditDocumentRequest) (*SalesDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusVoided {
		return nil, fmt.Errorf("%w: edit on voided document", ErrInvalidTransition)
	}

	tl, err := s.timeline.Resolve(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("resolve timeline: %w", err)
	}
	if IsForwardLocked(doc, tl) {
		return nil, ErrForwardLocked
	}

	patch := Patch{}
	if req.IssueDate != nil {
		patch[FieldIssueDate] = *req.IssueDate
	}
	if req.DueDate != nil {
		patch[FieldDueDate] = *req.DueDate
	}
	if req.Subtotal != nil {
		patch[FieldSubtotal] = *req.Subtotal
	}
	if req.TaxAmount != nil {
		patch[FieldTaxAmount] = *req.TaxAmount
	}
	if req.TotalAmount != nil {
		patch[FieldTotalAmount] = *req.TotalAmount
	}
	if req.Notes != nil {
		patch[FieldNotes] = *req.Notes
	}
	if len(patch) == 0 {
		return doc, nil
	}

	if _, err := s.store.UpdateDocument(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.store.GetDocument(ctx, id)
}

// SubmitQuotation moves a draft quotation to pending acceptance.
func (s *Service) SubmitQuotation(ctx context.Context, id uuid.UUID) (*SalesDocument, error) {
	return s.transition(ctx, id, EventSubmit, nil)
}

// AcceptQuotation transitions pending-acceptance to accepted.
func (s *Service) AcceptQuotation(ctx context.Context, id uuid.UUID, acceptanceDate time.Time) (*SalesDocument, error) {
	if acceptanceDate.IsZero() {
		acceptanceDate = s.now()
	}
	return s.transition(ctx, id, EventAccept, Patch{FieldAcceptedAt: acceptanceDate})
}

// RejectQuotation transitions pending-acceptance to rejected.
func (s *Service) RejectQuotation(ctx context.Context, id uuid.UUID) (*SalesDocument, error) {
	return s.transition(ctx, id, EventReject, nil)
}

// RecordPayment marks an invoice paid. Only invoices in pending-payment or
// overdue qualify; anything else fails with ErrInvalidTransition untouched.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID) (*SalesDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanRecordPayment(doc.Type, doc.Status) {
		return nil, fmt.Errorf("%w: record-payment on %s in %s", ErrInvalidTransition, doc.Type, doc.Status)
	}
	return s.applyTransition(ctx, doc, EventRecordPayment, Patch{FieldPaidAt: s.now()})
}

// MarkOverdueInvoices flips pending-payment invoices past their due date to
// overdue. Returns the number of documents updated.
func (s *Service) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int, error) {
	candidates, err := s.store.ListOverdueCandidates(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list overdue candidates: %w", err)
	}
	updated := 0
	for i := range candidates {
		doc := &candidates[i]
		next, err := NextStatus(doc.Type, doc.Status, EventMarkOverdue)
		if err != nil {
			continue
		}
		if _, err := s.store.UpdateDocument(ctx, doc.ID, Patch{FieldStatus: next}); err != nil {
			s.logger.Warn("mark overdue failed",
				slog.String("document_id", doc.ID.String()),
				slog.Any("error", err))
			continue
		}
		updated++
	}
	return updated, nil
}

// Void sets the document to voided and reverts its predecessor. Fails with
// ErrHasLiveSuccessor unless the document is the latest live entry in its
// chain: voids proceed strictly from the end of the chain backward.
func (s *Service) Void(ctx context.Context, id uuid.UUID) error {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	tl, err := s.timeline.Resolve(ctx, doc)
	if err != nil {
		return fmt.Errorf("resolve timeline: %w", err)
	}
	if successor := liveSuccessor(doc, tl); successor != nil {
		return fmt.Errorf("%w: %s %s", ErrHasLiveSuccessor, successor.Type, successor.DocNumber)
	}
	if _, err := NextStatus(doc.Type, doc.Status, EventVoid); err != nil {
		return err
	}

	type cascadeStep struct {
		name  string
		docID uuid.UUID
		patch Patch
	}
	var steps []cascadeStep

	switch doc.Type {
	case TypeReceipt:
		if tl.Invoice != nil {
			steps = append(steps, cascadeStep{
				name:  "revert-invoice",
				docID: tl.Invoice.ID,
				patch: Patch{
					FieldStatus:           s.invoiceRevertStatus(tl.Invoice),
					FieldRelatedReceiptID: nil,
				},
			})
		}
	case TypeInvoice:
		if tl.Quotation != nil {
			steps = append(steps, cascadeStep{
				name:  "revert-quotation",
				docID: tl.Quotation.ID,
				patch: Patch{
					FieldStatus:               StatusAccepted,
					FieldConvertedToInvoiceID: nil,
				},
			})
		}
	}

	targetPatch := Patch{
		FieldStatus:   StatusVoided,
		FieldVoidedAt: s.now(),
	}
	if doc.Type == TypeInvoice && doc.SourceQuotationID != nil {
		targetPatch[FieldSourceQuotationID] = nil
	}
	steps = append(steps, cascadeStep{name: "void-target", docID: doc.ID, patch: targetPatch})

	var applied []string
	for _, step := range steps {
		affected, err := s.store.UpdateDocument(ctx, step.docID, step.patch)
		if err == nil && affected == 0 {
			err = fmt.Errorf("no row matched document %s", step.docID)
		}
		if err != nil {
			if len(applied) == 0 {
				return fmt.Errorf("void %s: %w", step.name, err)
			}
			return &PartialCascadeError{
				Applied:          applied,
				FailedDocumentID: step.docID,
				FailedStep:       step.name,
				Err:              err,
			}
		}
		applied = append(applied, step.name)
	}

	if len(steps) > 1 {
		s.metrics.ObserveVoidCascade()
	}
	s.recordAudit(ctx, doc, "document.voided", map[string]any{"cascade_steps": applied})
	return nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*SalesDocument, error) {
	return s.store.GetDocument(ctx, id)
}

// Timeline resolves the chain around one document.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID) (Timeline, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return Timeline{}, err
	}
	return s.timeline.Resolve(ctx, doc)
}

// List returns a filtered page of documents plus the total count.
func (s *Service) List(ctx context.Context, req ListDocumentsRequest) ([]SalesDocument, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.store.ListDocuments(ctx, req)
}

// transition loads the document, validates the event against the state
// machine, and applies the resulting status plus extra patch fields.
func (s *Service) transition(ctx context.Context, id uuid.UUID, event Event, extra Patch) (*SalesDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, doc, event, extra)
}

func (s *Service) applyTransition(ctx context.Context, doc *SalesDocument, event Event, extra Patch) (*SalesDocument, error) {
	next, err := NextStatus(doc.Type, doc.Status, event)
	if err != nil {
		return nil, err
	}
	patch := Patch{FieldStatus: next}
	for k, v := range extra {
		patch[k] = v
	}
	if _, err := s.store.UpdateDocument(ctx, doc.ID, patch); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, doc, "document."+string(event), map[string]any{"status": string(next)})
	return s.store.GetDocument(ctx, doc.ID)
}

// invoiceRevertStatus recomputes the status an invoice returns to when its
// receipt is voided. A recorded payment keeps it paid; otherwise the due date
// decides between pending-payment and overdue.
func (s *Service) invoiceRevertStatus(invoice *SalesDocument) Status {
	if invoice.PaidAt != nil {
		return StatusPaid
	}
	if invoice.DueDate != nil && invoice.DueDate.Before(s.now()) {
		return StatusOverdue
	}
	return StatusPendingPayment
}

func (s *Service) recordAudit(ctx context.Context, doc *SalesDocument, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		BusinessID: doc.BusinessID,
		Action:     action,
		Entity:     "sales_document",
		EntityID:   doc.ID.String(),
		Meta:       meta,
		At:         s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
