package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/flowbooks/flowbooks/internal/documents"
)

// NewOverdueScanHandler returns the Asynq handler that flips invoices past
// their due date to overdue.
func NewOverdueScanHandler(svc *documents.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OverdueScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		asOf := payload.AsOf
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}

		marked, err := svc.MarkOverdueInvoices(ctx, asOf)
		if err != nil {
			if logger != nil {
				logger.Error("overdue scan failed", slog.Any("error", err))
			}
			return err
		}
		if logger != nil {
			logger.Info("overdue scan completed",
				slog.Time("as_of", asOf),
				slog.Int("marked", marked))
		}
		return nil
	}
}
