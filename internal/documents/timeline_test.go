package documents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// seedChain inserts a quotation, invoice and receipt. Forward and back links
// are set according to the flags so tests can simulate lost link writes.
func seedChain(store *memoryStore, forwardLinks, backLinks bool) (q, i, r *SalesDocument) {
	q = &SalesDocument{ID: uuid.New(), BusinessID: 1, Type: TypeQuotation, DocNumber: "QT-2025-0001", Status: StatusAccepted}
	i = &SalesDocument{ID: uuid.New(), BusinessID: 1, Type: TypeInvoice, DocNumber: "INV-2025-0001", Status: StatusPaid}
	r = &SalesDocument{ID: uuid.New(), BusinessID: 1, Type: TypeReceipt, DocNumber: "RCT-2025-0001", Status: StatusComplete}

	if forwardLinks {
		q.ConvertedToInvoiceID = &i.ID
		i.RelatedReceiptID = &r.ID
	}
	if backLinks {
		i.SourceQuotationID = &q.ID
		r.RelatedInvoiceID = &i.ID
	}
	store.put(q)
	store.put(i)
	store.put(r)
	return q, i, r
}

func TestResolveFullChainFromEachNode(t *testing.T) {
	store := newMemoryStore()
	q, i, r := seedChain(store, true, true)
	resolver := NewTimelineResolver(store, testLogger())

	for _, start := range []*SalesDocument{q, i, r} {
		tl, err := resolver.Resolve(context.Background(), start)
		require.NoError(t, err)
		require.NotNil(t, tl.Quotation)
		require.NotNil(t, tl.Invoice)
		require.NotNil(t, tl.Receipt)
		require.Equal(t, q.ID, tl.Quotation.ID)
		require.Equal(t, i.ID, tl.Invoice.ID)
		require.Equal(t, r.ID, tl.Receipt.ID)
	}
}

func TestResolveFallsBackToReverseScan(t *testing.T) {
	store := newMemoryStore()
	// Forward links were never written; only back links exist.
	q, i, r := seedChain(store, false, true)
	resolver := NewTimelineResolver(store, testLogger())

	tl, err := resolver.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, tl.Invoice)
	require.Equal(t, i.ID, tl.Invoice.ID)
	require.NotNil(t, tl.Receipt)
	require.Equal(t, r.ID, tl.Receipt.ID)
}

func TestResolveBackwardByForwardLinksOnly(t *testing.T) {
	store := newMemoryStore()
	q, i, r := seedChain(store, true, false)
	resolver := NewTimelineResolver(store, testLogger())

	tl, err := resolver.Resolve(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, tl.Invoice)
	require.Equal(t, i.ID, tl.Invoice.ID)
	require.NotNil(t, tl.Quotation)
	require.Equal(t, q.ID, tl.Quotation.ID)
}

func TestResolveIgnoresVoidedSuccessor(t *testing.T) {
	store := newMemoryStore()
	q := store.put(&SalesDocument{BusinessID: 1, Type: TypeQuotation, DocNumber: "QT-2025-0001", Status: StatusAccepted})
	store.put(&SalesDocument{BusinessID: 1, Type: TypeInvoice, DocNumber: "INV-2025-0001", Status: StatusVoided, SourceQuotationID: &q.ID})
	resolver := NewTimelineResolver(store, testLogger())

	tl, err := resolver.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.Nil(t, tl.Invoice)
	require.Nil(t, tl.Receipt)
}

func TestResolveToleratesDanglingLink(t *testing.T) {
	store := newMemoryStore()
	ghost := uuid.New()
	q := store.put(&SalesDocument{BusinessID: 1, Type: TypeQuotation, DocNumber: "QT-2025-0001", Status: StatusAccepted, ConvertedToInvoiceID: &ghost})
	i := store.put(&SalesDocument{BusinessID: 1, Type: TypeInvoice, DocNumber: "INV-2025-0001", Status: StatusPendingPayment, SourceQuotationID: &q.ID})
	resolver := NewTimelineResolver(store, testLogger())

	tl, err := resolver.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, tl.Invoice)
	require.Equal(t, i.ID, tl.Invoice.ID)
}

func TestResolveProformaPredecessor(t *testing.T) {
	store := newMemoryStore()
	p := store.put(&SalesDocument{BusinessID: 1, Type: TypeProforma, DocNumber: "QT-2025-0001", Status: StatusAccepted})
	i := store.put(&SalesDocument{BusinessID: 1, Type: TypeInvoice, DocNumber: "INV-2025-0001", Status: StatusPendingPayment})
	p.ConvertedToInvoiceID = &i.ID
	store.put(p)
	resolver := NewTimelineResolver(store, testLogger())

	tl, err := resolver.Resolve(context.Background(), i)
	require.NoError(t, err)
	require.NotNil(t, tl.Quotation)
	require.Equal(t, p.ID, tl.Quotation.ID)
}

func TestResolveCreditNoteStandsAlone(t *testing.T) {
	store := newMemoryStore()
	cn := store.put(&SalesDocument{BusinessID: 1, Type: TypeCreditNote, DocNumber: "INV-2025-0002", Status: StatusPendingPayment})
	resolver := NewTimelineResolver(store, testLogger())

	tl, err := resolver.Resolve(context.Background(), cn)
	require.NoError(t, err)
	require.Nil(t, tl.Quotation)
	require.Nil(t, tl.Receipt)
	require.NotNil(t, tl.Invoice)
	require.Equal(t, cn.ID, tl.Invoice.ID)
}
