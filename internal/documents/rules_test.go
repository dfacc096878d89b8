package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	cases := []struct {
		name    string
		docType DocType
		current Status
		event   Event
		want    Status
		wantErr bool
	}{
		{"submit draft quotation", TypeQuotation, StatusDraft, EventSubmit, StatusPendingAcceptance, false},
		{"accept pending quotation", TypeQuotation, StatusPendingAcceptance, EventAccept, StatusAccepted, false},
		{"reject pending quotation", TypeQuotation, StatusPendingAcceptance, EventReject, StatusRejected, false},
		{"void accepted quotation", TypeQuotation, StatusAccepted, EventVoid, StatusVoided, false},
		{"proforma shares quotation machine", TypeProforma, StatusDraft, EventSubmit, StatusPendingAcceptance, false},
		{"accept draft quotation", TypeQuotation, StatusDraft, EventAccept, "", true},
		{"submit accepted quotation", TypeQuotation, StatusAccepted, EventSubmit, "", true},
		{"void rejected quotation", TypeQuotation, StatusRejected, EventVoid, "", true},

		{"pay pending invoice", TypeInvoice, StatusPendingPayment, EventRecordPayment, StatusPaid, false},
		{"pay overdue invoice", TypeInvoice, StatusOverdue, EventRecordPayment, StatusPaid, false},
		{"overdue pending invoice", TypeInvoice, StatusPendingPayment, EventMarkOverdue, StatusOverdue, false},
		{"void paid invoice", TypeInvoice, StatusPaid, EventVoid, StatusVoided, false},
		{"credit note shares invoice machine", TypeCreditNote, StatusPendingPayment, EventRecordPayment, StatusPaid, false},
		{"pay paid invoice", TypeInvoice, StatusPaid, EventRecordPayment, "", true},
		{"overdue paid invoice", TypeInvoice, StatusPaid, EventMarkOverdue, "", true},
		{"void voided invoice", TypeInvoice, StatusVoided, EventVoid, "", true},

		{"void complete receipt", TypeReceipt, StatusComplete, EventVoid, StatusVoided, false},
		{"pay receipt", TypeReceipt, StatusComplete, EventRecordPayment, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextStatus(tc.docType, tc.current, tc.event)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCanRecordPayment(t *testing.T) {
	require.True(t, CanRecordPayment(TypeInvoice, StatusPendingPayment))
	require.True(t, CanRecordPayment(TypeInvoice, StatusOverdue))
	require.True(t, CanRecordPayment(TypeDebitNote, StatusPendingPayment))
	require.False(t, CanRecordPayment(TypeInvoice, StatusPaid))
	require.False(t, CanRecordPayment(TypeQuotation, StatusAccepted))
	require.False(t, CanRecordPayment(TypeReceipt, StatusComplete))
}

func TestIsForwardLocked(t *testing.T) {
	quotation := &SalesDocument{Type: TypeQuotation, Status: StatusAccepted}
	invoice := &SalesDocument{Type: TypeInvoice, Status: StatusPendingPayment}
	receipt := &SalesDocument{Type: TypeReceipt, Status: StatusComplete}

	require.True(t, IsForwardLocked(quotation, Timeline{Quotation: quotation, Invoice: invoice}))
	require.True(t, IsForwardLocked(invoice, Timeline{Invoice: invoice, Receipt: receipt}))
	require.False(t, IsForwardLocked(quotation, Timeline{Quotation: quotation}))
	require.False(t, IsForwardLocked(receipt, Timeline{Receipt: receipt}))

	// A voided successor does not lock its predecessor.
	voided := &SalesDocument{Type: TypeInvoice, Status: StatusVoided}
	require.False(t, IsForwardLocked(quotation, Timeline{Quotation: quotation, Invoice: voided}))
}

func TestFamilyFor(t *testing.T) {
	require.Equal(t, FamilyQuotation, FamilyFor(TypeQuotation))
	require.Equal(t, FamilyQuotation, FamilyFor(TypeProforma))
	require.Equal(t, FamilyInvoice, FamilyFor(TypeInvoice))
	require.Equal(t, FamilyInvoice, FamilyFor(TypeCreditNote))
	require.Equal(t, FamilyInvoice, FamilyFor(TypeDebitNote))
	require.Equal(t, FamilyReceipt, FamilyFor(TypeReceipt))
}
