package documents

import "fmt"

// Event is a lifecycle action applied to a document.
type Event string

const (
	EventSubmit        Event = "submit"
	EventAccept        Event = "accept"
	EventReject        Event = "reject"
	EventRecordPayment Event = "record-payment"
	EventMarkOverdue   Event = "mark-overdue"
	EventVoid          Event = "void"
)

// quotationTransitions covers quotations and proforma invoices.
// Voiding from a non-terminal state is allowed here; the I1 guard (no live
// invoice referencing the quotation) is enforced by the orchestrator, not the
// table, because it needs the resolved timeline.
var quotationTransitions = map[Status]map[Event]Status{
	StatusDraft: {
		EventSubmit: StatusPendingAcceptance,
		EventVoid:   StatusVoided,
	},
	StatusPendingAcceptance: {
		EventAccept: StatusAccepted,
		EventReject: StatusRejected,
		EventVoid:   StatusVoided,
	},
	StatusAccepted: {
		EventVoid: StatusVoided,
	},
}

// invoiceTransitions covers invoices and credit/debit notes, which share the
// invoice state machine. Voiding a paid invoice is additionally guarded by
// the absence of a live receipt.
var invoiceTransitions = map[Status]map[Event]Status{
	StatusPendingPayment: {
		EventRecordPayment: StatusPaid,
		EventMarkOverdue:   StatusOverdue,
		EventVoid:          StatusVoided,
	},
	StatusOverdue: {
		EventRecordPayment: StatusPaid,
		EventVoid:          StatusVoided,
	},
	StatusPaid: {
		EventVoid: StatusVoided,
	},
}

// receiptTransitions: receipts have no successor, so voiding is never
// forward-locked.
var receiptTransitions = map[Status]map[Event]Status{
	StatusPaid: {
		EventVoid: StatusVoided,
	},
	StatusComplete: {
		EventVoid: StatusVoided,
	},
}

func transitionTable(t DocType) map[Status]map[Event]Status {
	switch t {
	case TypeQuotation, TypeProforma:
		return quotationTransitions
	case TypeReceipt:
		return receiptTransitions
	default:
		return invoiceTransitions
	}
}

// NextStatus maps (type, current status, event) to the resulting status.
// Undefined transitions fail with ErrInvalidTransition and imply no writes.
func NextStatus(t DocType, current Status, event Event) (Status, error) {
	if events, ok := transitionTable(t)[current]; ok {
		if next, ok := events[event]; ok {
			return next, nil
		}
	}
	return "", fmt.Errorf("%w: %s %s on %s", ErrInvalidTransition, t, current, event)
}

// CanRecordPayment reports whether a payment may be recorded. Only invoices
// (and credit/debit notes) awaiting payment qualify.
func CanRecordPayment(t DocType, s Status) bool {
	switch t {
	case TypeQuotation, TypeProforma, TypeReceipt:
		return false
	}
	return s == StatusPendingPayment || s == StatusOverdue
}

// IsForwardLocked reports whether a live (non-voided) successor in the
// resolved timeline references the document. A forward-locked document cannot
// be edited or voided.
func IsForwardLocked(doc *SalesDocument, tl Timeline) bool {
	if doc == nil {
		return false
	}
	return liveSuccessor(doc, tl) != nil
}

// liveSuccessor returns the nearest non-voided successor of doc in the
// timeline, or nil.
func liveSuccessor(doc *SalesDocument, tl Timeline) *SalesDocument {
	switch doc.Type {
	case TypeQuotation, TypeProforma:
		if isLive(tl.Invoice) {
			return tl.Invoice
		}
		if isLive(tl.Receipt) {
			return tl.Receipt
		}
	case TypeInvoice:
		if isLive(tl.Receipt) {
			return tl.Receipt
		}
	}
	return nil
}

func isLive(doc *SalesDocument) bool {
	return doc != nil && doc.Status != StatusVoided
}
