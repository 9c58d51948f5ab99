package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/mkarev/document-analysis-service/internal/analyzer"
	"github.com/mkarev/document-analysis-service/internal/models"
	"github.com/mkarev/document-analysis-service/internal/queue"
	"github.com/mkarev/document-analysis-service/internal/repository"
	"github.com/mkarev/document-analysis-service/internal/utils"
)

// Worker consumes analysis jobs, calls the analysis backend and writes the
// document's terminal state. It runs out-of-process relative to the
// request path.
type Worker struct {
	consumer   queue.Consumer
	analyzer   analyzer.Analyzer
	repo       repository.Repository
	logger     *utils.Logger
	jobTimeout time.Duration
}

func New(consumer queue.Consumer, a analyzer.Analyzer, repo repository.Repository, jobTimeout time.Duration, logger *utils.Logger) *Worker {
	return &Worker{
		consumer:   consumer,
		analyzer:   a,
		repo:       repo,
		logger:     logger.Component("worker"),
		jobTimeout: jobTimeout,
	}
}

// Run consumes jobs until the context is cancelled. Deliveries a previous
// run left in flight are requeued first; a delivery is acknowledged only
// after its document reached a terminal state.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.consumer.Recover(ctx); err != nil {
		w.logger.Error("Failed to recover pending jobs", "error", err)
	} else if n > 0 {
		w.logger.Info("Requeued unfinished jobs from a previous run", "count", n)
	}

	w.logger.Info("Worker started")
	for {
		delivery, err := w.consumer.Dequeue(ctx)
		if ctx.Err() != nil {
			w.logger.Info("Worker stopping")
			return ctx.Err()
		}
		if err != nil {
			w.logger.Error("Failed to dequeue job", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if delivery == nil {
			continue
		}

		if err := w.Process(ctx, &delivery.Job); err != nil {
			// Left unacknowledged; the next run's Recover requeues it.
			w.logger.Error("Failed to process job", "document_id", delivery.Job.DocumentID, "error", err)
			continue
		}
		if err := w.consumer.Ack(context.WithoutCancel(ctx), delivery); err != nil {
			w.logger.Error("Failed to acknowledge job", "document_id", delivery.Job.DocumentID, "error", err)
		}
	}
}

// Process handles one job delivery. Queue delivery is at-least-once, so a
// job whose document is already terminal is a safe no-op; the repository's
// status-guarded writes absorb any race that slips past the early check.
func (w *Worker) Process(ctx context.Context, job *models.AnalysisJob) error {
	doc, err := w.repo.GetByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		w.logger.Warn("Job references unknown document", "document_id", job.DocumentID)
		return nil
	}
	if models.IsTerminal(doc.Status) {
		w.logger.Info("Document already terminal, skipping redelivery", "document_id", doc.ID, "status", doc.Status)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := w.analyzer.Analyze(callCtx, *job)

	// Terminal writes run on a detached context: a shutdown signal arriving
	// between the backend call and the database write must not strand the
	// document in processing.
	writeCtx := context.WithoutCancel(ctx)

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown aborted the call; that is not an analysis verdict.
			// Leave the delivery unacknowledged so the next run retries it.
			return fmt.Errorf("analysis interrupted by shutdown: %w", ctx.Err())
		}
		w.logger.Error("Analysis failed", "document_id", doc.ID, "error", err)
		if markErr := w.repo.MarkFailed(writeCtx, doc.ID, err.Error()); markErr != nil {
			return fmt.Errorf("failed to mark document failed: %w", markErr)
		}
		return nil
	}

	if err := w.repo.CompleteAnalysis(writeCtx, doc.ID, result); err != nil {
		return fmt.Errorf("failed to write analysis result: %w", err)
	}

	w.logger.Info("Document analyzed",
		"document_id", doc.ID,
		"blocks", len(result.Blocks),
		"tags", len(result.Tags))
	return nil
}
