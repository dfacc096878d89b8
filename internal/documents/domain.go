package documents

import (
	"time"

	"github.com/google/uuid"
)

// DocType identifies a sales document kind.
type DocType string

const (
	TypeQuotation  DocType = "quotation"
	TypeProforma   DocType = "proforma"
	TypeInvoice    DocType = "invoice"
	TypeCreditNote DocType = "credit-note"
	TypeDebitNote  DocType = "debit-note"
	TypeReceipt    DocType = "receipt"
)

// Valid reports whether the document type is known.
func (t DocType) Valid() bool {
	switch t {
	case TypeQuotation, TypeProforma, TypeInvoice, TypeCreditNote, TypeDebitNote, TypeReceipt:
		return true
	}
	return false
}

// Status is a lifecycle state of a sales document.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingAcceptance Status = "pending-acceptance"
	StatusAccepted          Status = "accepted"
	StatusRejected          Status = "rejected"
	StatusPendingPayment    Status = "pending-payment"
	StatusOverdue           Status = "overdue"
	StatusPaid              Status = "paid"
	StatusComplete          Status = "complete"
	StatusVoided            Status = "voided"
)

// Family is a numbering family: document types in the same family share one
// sequence counter and prefix series.
type Family string

const (
	FamilyQuotation Family = "QT"
	FamilyInvoice   Family = "INV"
	FamilyReceipt   Family = "RCT"
)

// FamilyFor returns the numbering family of a document type. Quotations and
// proforma invoices share one series, invoices with credit/debit notes share
// another, receipts run their own.
func FamilyFor(t DocType) Family {
	switch t {
	case TypeQuotation, TypeProforma:
		return FamilyQuotation
	case TypeReceipt:
		return FamilyReceipt
	default:
		return FamilyInvoice
	}
}

// SalesDocument is the persisted document record managed by the engine.
// Monetary amounts are opaque inputs computed by the caller.
type SalesDocument struct {
	ID         uuid.UUID `json:"id" db:"id"`
	BusinessID int64     `json:"business_id" db:"business_id"`
	Type       DocType   `json:"type" db:"doc_type"`
	DocNumber  string    `json:"doc_number" db:"doc_number"`
	Status     Status    `json:"status" db:"status"`

	IssueDate   time.Time  `json:"issue_date" db:"issue_date"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	Subtotal    float64    `json:"subtotal" db:"subtotal"`
	TaxAmount   float64    `json:"tax_amount" db:"tax_amount"`
	TotalAmount float64    `json:"total_amount" db:"total_amount"`
	Notes       *string    `json:"notes,omitempty" db:"notes"`

	// Chain links. Forward links point at the successor, back links at the
	// predecessor. Set when the successor is created, cleared when it is voided.
	ConvertedToInvoiceID *uuid.UUID `json:"converted_to_invoice_id,omitempty" db:"converted_to_invoice_id"`
	SourceQuotationID    *uuid.UUID `json:"source_quotation_id,omitempty" db:"source_quotation_id"`
	RelatedReceiptID     *uuid.UUID `json:"related_receipt_id,omitempty" db:"related_receipt_id"`
	RelatedInvoiceID     *uuid.UUID `json:"related_invoice_id,omitempty" db:"related_invoice_id"`

	AcceptedAt *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	VoidedAt   *time.Time `json:"voided_at,omitempty" db:"voided_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Timeline is the resolved quotation → invoice → receipt chain around one
// document. Computed on demand, never persisted.
type Timeline struct {
	Quotation *SalesDocument `json:"quotation,omitempty"`
	Invoice   *SalesDocument `json:"invoice,omitempty"`
	Receipt   *SalesDocument `json:"receipt,omitempty"`
}

// CreateDocumentRequest carries the inputs for creating a document, optionally
// chained to a source document.
type CreateDocumentRequest struct {
	BusinessID  int64      `json:"business_id" validate:"required,gt=0"`
	Type        DocType    `json:"type" validate:"required"`
	IssueDate   time.Time  `json:"issue_date" validate:"required"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Subtotal    float64    `json:"subtotal" validate:"gte=0"`
	TaxAmount   float64    `json:"tax_amount" validate:"gte=0"`
	TotalAmount float64    `json:"total_amount" validate:"gte=0"`
	Notes       *string    `json:"notes,omitempty"`
	SourceDocID *uuid.UUID `json:"source_doc_id,omitempty"`
}

// EditDocumentRequest is a partial update. DocNumber, type and status are not
// editable through this path.
type EditDocumentRequest struct {
	IssueDate   *time.Time `json:"issue_date,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Subtotal    *float64   `json:"subtotal,omitempty" validate:"omitempty,gte=0"`
	TaxAmount   *float64   `json:"tax_amount,omitempty" validate:"omitempty,gte=0"`
	TotalAmount *float64   `json:"total_amount,omitempty" validate:"omitempty,gte=0"`
	Notes       *string    `json:"notes,omitempty"`
}

// ListDocumentsRequest filters the document listing.
type ListDocumentsRequest struct {
	BusinessID int64      `json:"business_id" validate:"required,gt=0"`
	Type       *DocType   `json:"type,omitempty"`
	Status     *Status    `json:"status,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Limit      int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int        `json:"offset" validate:"gte=0"`
}

// InitialStatus returns the state a freshly created document starts in.
func InitialStatus(t DocType) Status {
	switch t {
	case TypeQuotation, TypeProforma:
		return StatusDraft
	case TypeReceipt:
		return StatusComplete
	default:
		return StatusPendingPayment
	}
}

// successorType returns the document type expected as the next chain element,
// or "" when the type has no successor.
func successorType(t DocType) DocType {
	switch t {
	case TypeQuotation, TypeProforma:
		return TypeInvoice
	case TypeInvoice:
		return TypeReceipt
	default:
		return ""
	}
}
