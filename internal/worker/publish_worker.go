package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cruscotto/internal/amqp"
	"cruscotto/internal/core"
	"cruscotto/internal/services"
	"cruscotto/internal/sheets"
	"cruscotto/internal/storage"
)

// Config tunes retries of failed publications.
type Config struct {
	// BatchSize is the max number of pending publications per retry cycle.
	BatchSize int
	// MaxAttempts marks a publication failed after this many attempts.
	MaxAttempts int
	// RetryDelay is the minimum age of a pending publication before the
	// retry loop picks it up.
	RetryDelay time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:   10,
		MaxAttempts: 3,
		RetryDelay:  time.Minute,
	}
}

// PublishWorker recomputes requested reports and writes them to the
// report sheet, recording the outcome of each publication.
type PublishWorker struct {
	reports *services.ReportService
	store   services.PublicationStore
	writer  sheets.ReportWriter
	config  Config
	now     func() time.Time
}

// NewPublishWorker creates a worker. store may be nil, in which case
// publications are not tracked. A nil writer only logs the reports.
func NewPublishWorker(reports *services.ReportService, store services.PublicationStore, writer sheets.ReportWriter, config Config) *PublishWorker {
	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	return &PublishWorker{
		reports: reports,
		store:   store,
		writer:  writer,
		config:  config,
		now:     time.Now,
	}
}

// HandlePublishMessage processes one publish request from AMQP. It returns
// an error only when the message should be requeued.
func (w *PublishWorker) HandlePublishMessage(ctx context.Context, msg *amqp.ReportPublishMessage) error {
	pub := storage.Publication{
		ID:         msg.ID,
		Period1:    msg.Period1,
		Period2:    msg.Period2,
		ShowDetail: msg.ShowDetail,
		Status:     storage.StatusPending,
	}

	tracked := false
	if w.store != nil {
		stored, err := w.store.GetPublication(ctx, msg.ID)
		switch {
		case err == nil:
			pub, tracked = stored, true
		case errors.Is(err, storage.ErrPublicationNotFound):
			slog.WarnContext(ctx, "Publication not recorded, publishing untracked", "id", msg.ID)
		default:
			return fmt.Errorf("get publication: %w", err)
		}
	}

	if tracked && pub.Status != storage.StatusPending {
		slog.InfoContext(ctx, "Publication already handled, skipping",
			"id", pub.ID,
			"status", pub.Status)
		return nil
	}

	if !tracked {
		_, err := w.write(ctx, pub)
		if errors.Is(err, core.ErrMissingPeriodColumn) {
			slog.ErrorContext(ctx, "Dropping publication for unknown period", "id", pub.ID, "error", err)
			return nil
		}
		return err
	}
	return w.publish(ctx, pub)
}

// ProcessPending retries pending publications older than RetryDelay. This
// is a backup mechanism in case AMQP messages are lost.
func (w *PublishWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.config.BatchSize, w.config.RetryDelay)
}

// StartupCheck publishes everything left pending while the worker was down.
func (w *PublishWorker) StartupCheck(ctx context.Context) error {
	n, err := w.processPending(ctx, w.config.BatchSize*5, 0)
	if err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending publications found on startup")
	} else {
		slog.InfoContext(ctx, "Processed pending publications on startup", "count", n)
	}
	return nil
}

func (w *PublishWorker) processPending(ctx context.Context, limit int, minAge time.Duration) (int, error) {
	if w.store == nil {
		return 0, nil
	}
	pending, err := w.store.PendingPublications(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending publications: %w", err)
	}

	processed := 0
	for _, pub := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if minAge > 0 && w.now().Sub(pub.UpdatedAt) < minAge {
			continue
		}
		if err := w.publish(ctx, pub); err != nil {
			slog.ErrorContext(ctx, "Failed to process publication", "id", pub.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// publish writes a tracked publication and records the outcome. Failures
// are recorded as attempts until MaxAttempts, then the publication fails.
// A period that does not exist fails at once.
func (w *PublishWorker) publish(ctx context.Context, pub storage.Publication) error {
	ref, err := w.write(ctx, pub)
	if err == nil {
		return w.store.MarkPublished(ctx, pub.ID, ref)
	}

	if errors.Is(err, core.ErrMissingPeriodColumn) || pub.Attempts+1 >= w.config.MaxAttempts {
		slog.ErrorContext(ctx, "Publication failed permanently",
			"id", pub.ID,
			"attempts", pub.Attempts+1,
			"error", err)
		return w.store.MarkPublishFailed(ctx, pub.ID, err)
	}
	return w.store.RecordPublishAttempt(ctx, pub.ID, err)
}

func (w *PublishWorker) write(ctx context.Context, pub storage.Publication) (string, error) {
	q := services.ReportQuery{
		Period1:    pub.Period1,
		Period2:    pub.Period2,
		ShowDetail: pub.ShowDetail,
	}

	if w.writer == nil {
		res, err := w.reports.Report(ctx, q)
		if err != nil {
			return "", err
		}
		slog.InfoContext(ctx, "No report writer configured, report logged only",
			"id", pub.ID,
			"period_1", res.Report.Period1,
			"period_2", res.Report.Period2,
			"rows", len(res.Report.Rows))
		return "", nil
	}

	ref, err := w.reports.Publish(ctx, q, w.writer)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Published report",
		"id", pub.ID,
		"sheet_ref", ref)
	return ref, nil
}
