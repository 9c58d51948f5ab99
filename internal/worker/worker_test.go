package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkarev/document-analysis-service/internal/analyzer"
	"github.com/mkarev/document-analysis-service/internal/models"
	"github.com/mkarev/document-analysis-service/internal/queue"
	"github.com/mkarev/document-analysis-service/internal/utils"
)

// fakeRepo honors context cancellation on writes the way database/sql does.
type fakeRepo struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	completed []string
	failed    map[string]string
}

func newFakeRepo(docs ...*models.Document) *fakeRepo {
	r := &fakeRepo{
		docs:   make(map[string]*models.Document),
		failed: make(map[string]string),
	}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id], nil
}

func (r *fakeRepo) ListByUser(context.Context, string, int, int) ([]models.TinyDocument, int, error) {
	return nil, 0, nil
}

func (r *fakeRepo) CompleteAnalysis(ctx context.Context, id string, _ *models.AnalysisResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, id)
	if doc, ok := r.docs[id]; ok {
		doc.Status = models.StatusCompleted
	}
	return nil
}

func (r *fakeRepo) MarkFailed(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = reason
	if doc, ok := r.docs[id]; ok {
		doc.Status = models.StatusFailed
	}
	return nil
}

func (r *fakeRepo) completedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed...)
}

func (r *fakeRepo) failedReason(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.failed[id]
	return reason, ok
}

type fakeAnalyzer struct {
	result *models.AnalysisResult
	err    error
	calls  int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ models.AnalysisJob) (*models.AnalysisResult, error) {
	a.calls++
	return a.result, a.err
}

// fakeConsumer mimics the queue's processing-list semantics in memory.
type fakeConsumer struct {
	mu         sync.Mutex
	pending    []models.AnalysisJob
	processing []models.AnalysisJob
	acked      []string
}

func (c *fakeConsumer) Dequeue(_ context.Context) (*queue.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	job := c.pending[0]
	c.pending = c.pending[1:]
	c.processing = append(c.processing, job)
	return &queue.Delivery{Job: job}, nil
}

func (c *fakeConsumer) Ack(_ context.Context, d *queue.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, job := range c.processing {
		if job.DocumentID == d.Job.DocumentID {
			c.processing = append(c.processing[:i], c.processing[i+1:]...)
			break
		}
	}
	c.acked = append(c.acked, d.Job.DocumentID)
	return nil
}

func (c *fakeConsumer) Recover(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.processing)
	c.pending = append(c.processing, c.pending...)
	c.processing = nil
	return n, nil
}

func (c *fakeConsumer) ackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.acked...)
}

func testWorker(repo *fakeRepo, a analyzer.Analyzer) *Worker {
	return New(&fakeConsumer{}, a, repo, time.Second, utils.NewLogger("error"))
}

func processingDoc(id string) *models.Document {
	return &models.Document{
		ID:     id,
		UserID: "user-1",
		Status: models.StatusProcessing,
	}
}

func TestProcessSuccess(t *testing.T) {
	repo := newFakeRepo(processingDoc("doc-1"))
	a := &fakeAnalyzer{result: &models.AnalysisResult{Title: "T", Summary: "S"}}

	err := testWorker(repo, a).Process(context.Background(), &models.AnalysisJob{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if ids := repo.completedIDs(); len(ids) != 1 || ids[0] != "doc-1" {
		t.Errorf("completed = %v, want [doc-1]", ids)
	}
	if _, ok := repo.failedReason("doc-1"); ok {
		t.Errorf("document marked failed on success")
	}
}

func TestProcessAnalysisFailure(t *testing.T) {
	repo := newFakeRepo(processingDoc("doc-1"))
	a := &fakeAnalyzer{err: errors.New("model unavailable")}

	err := testWorker(repo, a).Process(context.Background(), &models.AnalysisJob{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if ids := repo.completedIDs(); len(ids) != 0 {
		t.Errorf("completed = %v, want empty", ids)
	}
	if reason, _ := repo.failedReason("doc-1"); reason != "model unavailable" {
		t.Errorf("failure reason = %q", reason)
	}
}

func TestProcessSkipsTerminalDocument(t *testing.T) {
	doc := processingDoc("doc-1")
	doc.Status = models.StatusCompleted
	repo := newFakeRepo(doc)
	a := &fakeAnalyzer{result: &models.AnalysisResult{}}

	err := testWorker(repo, a).Process(context.Background(), &models.AnalysisJob{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if a.calls != 0 {
		t.Errorf("analyzer called %d times on terminal document", a.calls)
	}
}

func TestProcessUnknownDocument(t *testing.T) {
	repo := newFakeRepo()
	a := &fakeAnalyzer{}

	err := testWorker(repo, a).Process(context.Background(), &models.AnalysisJob{DocumentID: "missing"})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if a.calls != 0 {
		t.Errorf("analyzer called for unknown document")
	}
}

// cancellingAnalyzer simulates a shutdown signal arriving while the backend
// call is in flight but before it returns its verdict.
type cancellingAnalyzer struct {
	cancel context.CancelFunc
	result *models.AnalysisResult
	abort  bool
}

func (a *cancellingAnalyzer) Analyze(ctx context.Context, _ models.AnalysisJob) (*models.AnalysisResult, error) {
	a.cancel()
	if a.abort {
		return nil, ctx.Err()
	}
	return a.result, nil
}

func TestProcessTerminalWriteSurvivesShutdown(t *testing.T) {
	// The run context is cancelled between the backend call returning and
	// the database write; the terminal write must still land.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := newFakeRepo(processingDoc("doc-1"))
	a := &cancellingAnalyzer{cancel: cancel, result: &models.AnalysisResult{Title: "T", Summary: "S"}}

	err := testWorker(repo, a).Process(ctx, &models.AnalysisJob{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if ids := repo.completedIDs(); len(ids) != 1 {
		t.Fatalf("completed = %v, want [doc-1]", ids)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed", doc.Status)
	}
}

func TestProcessShutdownMidCallIsNotAFailure(t *testing.T) {
	// A call aborted by shutdown must not mark the document failed; the job
	// stays unacknowledged and is redelivered instead.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := newFakeRepo(processingDoc("doc-1"))
	a := &cancellingAnalyzer{cancel: cancel, abort: true}

	err := testWorker(repo, a).Process(ctx, &models.AnalysisJob{DocumentID: "doc-1"})
	if err == nil {
		t.Fatalf("Process returned nil, want an error signalling the aborted job")
	}
	if _, ok := repo.failedReason("doc-1"); ok {
		t.Errorf("document marked failed by shutdown")
	}
	if ids := repo.completedIDs(); len(ids) != 0 {
		t.Errorf("completed = %v, want empty", ids)
	}
}

// blockingAnalyzer parks until its context is cancelled, like an HTTP call
// waiting on a slow backend.
type blockingAnalyzer struct {
	started chan struct{}
	once    sync.Once
}

func (a *blockingAnalyzer) Analyze(ctx context.Context, _ models.AnalysisJob) (*models.AnalysisResult, error) {
	a.once.Do(func() { close(a.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunRedeliversJobInterruptedByShutdown(t *testing.T) {
	repo := newFakeRepo(processingDoc("doc-1"))
	consumer := &fakeConsumer{pending: []models.AnalysisJob{{DocumentID: "doc-1"}}}
	logger := utils.NewLogger("error")

	// First run: shut down while the job is in flight.
	blocking := &blockingAnalyzer{started: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(consumer, blocking, repo, time.Minute, logger).Run(ctx)
	}()
	<-blocking.started
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}

	if ids := consumer.ackedIDs(); len(ids) != 0 {
		t.Fatalf("interrupted job was acknowledged: %v", ids)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != models.StatusProcessing {
		t.Fatalf("status after shutdown = %q, want processing", doc.Status)
	}

	// Second run: the job is recovered, reprocessed and acknowledged.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	go func() {
		New(consumer, &fakeAnalyzer{result: &models.AnalysisResult{Title: "T", Summary: "S"}}, repo, time.Minute, logger).Run(ctx2)
	}()

	deadline := time.After(time.Second)
	for {
		if ids := consumer.ackedIDs(); len(ids) == 1 && ids[0] == "doc-1" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("recovered job was not acknowledged, acked = %v", consumer.ackedIDs())
		case <-time.After(5 * time.Millisecond):
		}
	}

	doc, _ = repo.GetByID(context.Background(), "doc-1")
	if doc.Status != models.StatusCompleted {
		t.Errorf("status after redelivery = %q, want completed", doc.Status)
	}
}
