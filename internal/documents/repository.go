package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbooks/flowbooks/internal/observability"
)

// ErrDuplicateNumber indicates an insert collided with an existing doc number.
var ErrDuplicateNumber = errors.New("duplicate document number")

// errAtomicUnsupported signals the store has no server-side increment
// primitive and the allocator must use the CAS path.
var errAtomicUnsupported = errors.New("atomic increment unsupported")

// Field is a canonical patch field name. The repository maps each canonical
// name to whatever column the store actually uses; business logic never sees
// column-name variants.
type Field string

const (
	FieldStatus               Field = "status"
	FieldIssueDate            Field = "issue_date"
	FieldDueDate              Field = "due_date"
	FieldSubtotal             Field = "subtotal"
	FieldTaxAmount            Field = "tax_amount"
	FieldTotalAmount          Field = "total_amount"
	FieldNotes                Field = "notes"
	FieldConvertedToInvoiceID Field = "converted_to_invoice_id"
	FieldSourceQuotationID    Field = "source_quotation_id"
	FieldRelatedReceiptID     Field = "related_receipt_id"
	FieldRelatedInvoiceID     Field = "related_invoice_id"
	FieldAcceptedAt           Field = "accepted_at"
	FieldPaidAt               Field = "paid_at"
	FieldVoidedAt             Field = "voided_at"
)

// Patch is a partial document update keyed by canonical field. A nil value
// clears the column.
type Patch map[Field]any

// Store is the persistence port consumed by the engine. Implementations must
// guarantee the atomicity of ConditionalUpdateCounter; everything else is
// single-row reads and writes.
type Store interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*SalesDocument, error)
	FindByReverseLink(ctx context.Context, businessID int64, docType DocType, linkField Field, targetID uuid.UUID) (*SalesDocument, error)
	InsertDocument(ctx context.Context, doc *SalesDocument) error
	UpdateDocument(ctx context.Context, id uuid.UUID, patch Patch) (int64, error)
	ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]SalesDocument, int, error)
	MaxDocNumber(ctx context.Context, businessID int64, prefix string) (string, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]SalesDocument, error)

	GetCounter(ctx context.Context, businessID int64, family Family) (int64, error)
	InitCounter(ctx context.Context, businessID int64, family Family, value int64) error
	ConditionalUpdateCounter(ctx context.Context, businessID int64, family Family, expected, next int64) (int64, error)
	// NextCounterValue is the server-side atomic increment fast path. Stores
	// without one return errAtomicUnsupported.
	NextCounterValue(ctx context.Context, businessID int64, family Family) (int64, error)

	GetNumberingPrefix(ctx context.Context, businessID int64, family Family) (string, error)
}

// legacyColumns maps canonical link columns to the column names older
// deployments used. Tried once when the store rejects the canonical name.
var legacyColumns = map[Field]string{
	FieldConvertedToInvoiceID: "converted_invoice_id",
	FieldSourceQuotationID:    "ref_quotation_id",
	FieldRelatedReceiptID:     "ref_receipt_id",
	FieldRelatedInvoiceID:     "ref_invoice_id",
}

const documentColumns = `id, business_id, doc_type, doc_number, status, issue_date, due_date,
	subtotal, tax_amount, total_amount, notes,
	converted_to_invoice_id, source_quotation_id, related_receipt_id, related_invoice_id,
	accepted_at, paid_at, voided_at, created_at, updated_at`

type repository struct {
	pool    *pgxpool.Pool
	metrics *observability.Metrics
}

// NewRepository builds the PostgreSQL-backed Store. metrics may be nil.
func NewRepository(pool *pgxpool.Pool, metrics *observability.Metrics) Store {
	return &repository{pool: pool, metrics: metrics}
}

func (r *repository) GetDocument(ctx context.Context, id uuid.UUID) (*SalesDocument, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM sales_documents WHERE id = $1`, documentColumns), id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *repository) FindByReverseLink(ctx context.Context, businessID int64, docType DocType, linkField Field, targetID uuid.UUID) (*SalesDocument, error) {
	query := func(column string) (*SalesDocument, error) {
		row := r.pool.QueryRow(ctx, fmt.Sprintf(
			`SELECT %s FROM sales_documents
			 WHERE business_id = $1 AND doc_type = $2 AND %s = $3 AND status <> $4
			 ORDER BY created_at DESC LIMIT 1`, documentColumns, column),
			businessID, docType, targetID, StatusVoided)
		return scanDocument(row)
	}

	doc, err := query(string(linkField))
	if err != nil && isUndefinedColumn(err) {
		if legacy, ok := legacyColumns[linkField]; ok {
			r.metrics.ObserveSchemaRetry()
			doc, err = query(legacy)
		}
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUndefinedColumn(err) {
			return nil, fmt.Errorf("%w: column %s: %v", ErrSchemaMismatch, linkField, err)
		}
		return nil, err
	}
	return doc, nil
}

func (r *repository) InsertDocument(ctx context.Context, doc *SalesDocument) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sales_documents (
			id, business_id, doc_type, doc_number, status, issue_date, due_date,
			subtotal, tax_amount, total_amount, notes,
			converted_to_invoice_id, source_quotation_id, related_receipt_id, related_invoice_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())`,
		doc.ID, doc.BusinessID, doc.Type, doc.DocNumber, doc.Status,
		doc.IssueDate, doc.DueDate,
		doc.Subtotal, doc.TaxAmount, doc.TotalAmount, doc.Notes,
		doc.ConvertedToInvoiceID, doc.SourceQuotationID, doc.RelatedReceiptID, doc.RelatedInvoiceID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "live_successor") {
				return ErrHasLiveSuccessor
			}
			return fmt.Errorf("%w: %s", ErrDuplicateNumber, doc.DocNumber)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *repository) UpdateDocument(ctx context.Context, id uuid.UUID, patch Patch) (int64, error) {
	if len(patch) == 0 {
		return 0, nil
	}

	exec := func(useLegacy bool) (int64, error) {
		query := "UPDATE sales_documents SET updated_at = NOW()"
		var args []any
		argPos := 1
		for _, f := range patchOrder {
			v, ok := patch[f]
			if !ok {
				continue
			}
			column := string(f)
			if useLegacy {
				if legacy, ok := legacyColumns[f]; ok {
					column = legacy
				}
			}
			query += fmt.Sprintf(", %s = $%d", column, argPos)
			args = append(args, v)
			argPos++
		}
		query += fmt.Sprintf(" WHERE id = $%d", argPos)
		args = append(args, id)

		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}

	affected, err := exec(false)
	if err != nil && isUndefinedColumn(err) {
		r.metrics.ObserveSchemaRetry()
		affected, err = exec(true)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "live_successor") {
			return 0, ErrHasLiveSuccessor
		}
		if isUndefinedColumn(err) {
			return 0, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		return 0, fmt.Errorf("update document: %w", err)
	}
	return affected, nil
}

// patchOrder keeps generated SQL deterministic; map iteration is not.
var patchOrder = []Field{
	FieldStatus, FieldIssueDate, FieldDueDate,
	FieldSubtotal, FieldTaxAmount, FieldTotalAmount, FieldNotes,
	FieldConvertedToInvoiceID, FieldSourceQuotationID,
	FieldRelatedReceiptID, FieldRelatedInvoiceID,
	FieldAcceptedAt, FieldPaidAt, FieldVoidedAt,
}

func (r *repository) ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]SalesDocument, int, error) {
	conditions := []string{"business_id = $1"}
	args := []any{req.BusinessID}
	argPos := 2

	if req.Type != nil {
		conditions = append(conditions, fmt.Sprintf("doc_type = $%d", argPos))
		args = append(args, *req.Type)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("issue_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("issue_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM sales_documents "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM sales_documents %s
		ORDER BY issue_date DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, documentColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []SalesDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

func (r *repository) MaxDocNumber(ctx context.Context, businessID int64, prefix string) (string, error) {
	// Length-first ordering keeps zero-padded sequences numerically sorted
	// even after padding grows past four digits.
	var docNumber string
	err := r.pool.QueryRow(ctx, `
		SELECT doc_number FROM sales_documents
		WHERE business_id = $1 AND doc_number LIKE $2 || '%'
		ORDER BY length(doc_number) DESC, doc_number DESC
		LIMIT 1`, businessID, prefix).Scan(&docNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return docNumber, nil
}

func (r *repository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]SalesDocument, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM sales_documents
		WHERE doc_type IN ($1, $2, $3) AND status = $4 AND due_date IS NOT NULL AND due_date < $5`,
		documentColumns),
		TypeInvoice, TypeCreditNote, TypeDebitNote, StatusPendingPayment, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []SalesDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *repository) GetCounter(ctx context.Context, businessID int64, family Family) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM document_counters WHERE business_id = $1 AND family = $2`,
		businessID, family).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return value, nil
}

func (r *repository) InitCounter(ctx context.Context, businessID int64, family Family, value int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO document_counters (business_id, family, value) VALUES ($1, $2, $3)`,
		businessID, family, value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (r *repository) ConditionalUpdateCounter(ctx context.Context, businessID int64, family Family, expected, next int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE document_counters SET value = $1 WHERE business_id = $2 AND family = $3 AND value = $4`,
		next, businessID, family, expected)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) NextCounterValue(ctx context.Context, businessID int64, family Family) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_counters (business_id, family, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (business_id, family)
		DO UPDATE SET value = document_counters.value + 1
		RETURNING value`, businessID, family).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repository) GetNumberingPrefix(ctx context.Context, businessID int64, family Family) (string, error) {
	var prefix string
	err := r.pool.QueryRow(ctx,
		`SELECT prefix FROM numbering_settings WHERE business_id = $1 AND family = $2`,
		businessID, family).Scan(&prefix)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return prefix, nil
}

func isUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42703"
}

func scanDocument(row pgx.Row) (*SalesDocument, error) {
	var doc SalesDocument
	var dueDate, acceptedAt, paidAt, voidedAt pgtype.Timestamptz
	var notes pgtype.Text
	var convertedTo, sourceQuotation, relatedReceipt, relatedInvoice pgtype.UUID

	err := row.Scan(
		&doc.ID, &doc.BusinessID, &doc.Type, &doc.DocNumber, &doc.Status,
		&doc.IssueDate, &dueDate,
		&doc.Subtotal, &doc.TaxAmount, &doc.TotalAmount, &notes,
		&convertedTo, &sourceQuotation, &relatedReceipt, &relatedInvoice,
		&acceptedAt, &paidAt, &voidedAt,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		doc.DueDate = &dueDate.Time
	}
	if notes.Valid {
		val := notes.String
		doc.Notes = &val
	}
	doc.ConvertedToInvoiceID = uuidPtr(convertedTo)
	doc.SourceQuotationID = uuidPtr(sourceQuotation)
	doc.RelatedReceiptID = uuidPtr(relatedReceipt)
	doc.RelatedInvoiceID = uuidPtr(relatedInvoice)
	if acceptedAt.Valid {
		doc.AcceptedAt = &acceptedAt.Time
	}
	if paidAt.Valid {
		doc.PaidAt = &paidAt.Time
	}
	if voidedAt.Valid {
		doc.VoidedAt = &voidedAt.Time
	}
	return &doc, nil
}

func uuidPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}
