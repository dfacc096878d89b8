package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// TimelineResolver finds the predecessor and successor documents around a
// document. It follows stored forward links first and falls back to reverse
// scans, so timelines stay consistent even when a link write was lost
// (older data, or a best-effort link write that failed). Resolution is
// read-only and results are never cached beyond a single operation.
type TimelineResolver struct {
	store  Store
	logger *slog.Logger
}

// NewTimelineResolver builds a resolver.
func NewTimelineResolver(store Store, logger *slog.Logger) *TimelineResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimelineResolver{store: store, logger: logger}
}

// Resolve walks both directions from doc and returns the full chain.
// Credit and debit notes do not chain; their timeline holds only themselves.
func (r *TimelineResolver) Resolve(ctx context.Context, doc *SalesDocument) (Timeline, error) {
	var tl Timeline
	if doc == nil {
		return tl, nil
	}

	switch doc.Type {
	case TypeQuotation, TypeProforma:
		tl.Quotation = doc
		invoice, err := r.successorInvoice(ctx, doc)
		if err != nil {
			return tl, err
		}
		tl.Invoice = invoice
		if invoice != nil {
			if tl.Receipt, err = r.successorReceipt(ctx, invoice); err != nil {
				return tl, err
			}
		}

	case TypeInvoice:
		tl.Invoice = doc
		receipt, err := r.successorReceipt(ctx, doc)
		if err != nil {
			return tl, err
		}
		tl.Receipt = receipt
		if tl.Quotation, err = r.predecessorQuotation(ctx, doc); err != nil {
			return tl, err
		}

	case TypeReceipt:
		tl.Receipt = doc
		invoice, err := r.predecessorInvoice(ctx, doc)
		if err != nil {
			return tl, err
		}
		tl.Invoice = invoice
		if invoice != nil {
			if tl.Quotation, err = r.predecessorQuotation(ctx, invoice); err != nil {
				return tl, err
			}
		}

	default:
		tl.Invoice = doc
	}

	return tl, nil
}

func (r *TimelineResolver) successorInvoice(ctx context.Context, quotation *SalesDocument) (*SalesDocument, error) {
	if doc, found, err := r.followLink(ctx, quotation.ConvertedToInvoiceID); err != nil {
		return nil, err
	} else if found {
		return doc, nil
	}
	return r.reverseScan(ctx, quotation.BusinessID, TypeInvoice, FieldSourceQuotationID, quotation.ID)
}

func (r *TimelineResolver) successorReceipt(ctx context.Context, invoice *SalesDocument) (*SalesDocument, error) {
	if doc, found, err := r.followLink(ctx, invoice.RelatedReceiptID); err != nil {
		return nil, err
	} else if found {
		return doc, nil
	}
	return r.reverseScan(ctx, invoice.BusinessID, TypeReceipt, FieldRelatedInvoiceID, invoice.ID)
}

func (r *TimelineResolver) predecessorInvoice(ctx context.Context, receipt *SalesDocument) (*SalesDocument, error) {
	if doc, found, err := r.followLink(ctx, receipt.RelatedInvoiceID); err != nil {
		return nil, err
	} else if found {
		return doc, nil
	}
	return r.reverseScan(ctx, receipt.BusinessID, TypeInvoice, FieldRelatedReceiptID, receipt.ID)
}

func (r *TimelineResolver) predecessorQuotation(ctx context.Context, invoice *SalesDocument) (*SalesDocument, error) {
	if doc, found, err := r.followLink(ctx, invoice.SourceQuotationID); err != nil {
		return nil, err
	} else if found {
		return doc, nil
	}
	for _, t := range []DocType{TypeQuotation, TypeProforma} {
		doc, err := r.reverseScan(ctx, invoice.BusinessID, t, FieldConvertedToInvoiceID, invoice.ID)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	}
	return nil, nil
}

// followLink resolves a stored forward/back link. A dangling link (target row
// gone) is tolerated: found=false sends the caller to the reverse scan.
func (r *TimelineResolver) followLink(ctx context.Context, id *uuid.UUID) (*SalesDocument, bool, error) {
	if id == nil {
		return nil, false, nil
	}
	doc, err := r.store.GetDocument(ctx, *id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Warn("dangling document link", slog.String("target_id", id.String()))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("follow link: %w", err)
	}
	return doc, true, nil
}

func (r *TimelineResolver) reverseScan(ctx context.Context, businessID int64, docType DocType, linkField Field, targetID uuid.UUID) (*SalesDocument, error) {
	doc, err := r.store.FindByReverseLink(ctx, businessID, docType, linkField, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reverse scan: %w", err)
	}
	return doc, nil
}
