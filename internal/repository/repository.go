package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mkarev/document-analysis-service/internal/models"
)

type Repository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]models.TinyDocument, int, error)
	CompleteAnalysis(ctx context.Context, id string, result *models.AnalysisResult) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (
			id, user_id, filename, storage_key,
			show_tags, show_topics, analyze_images, show_recommendations, prompt,
			processing_status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.Filename,
		doc.StorageKey,
		doc.Options.ShowTags,
		doc.Options.ShowTopics,
		doc.Options.AnalyzeImages,
		doc.Options.ShowRecommendations,
		doc.Options.Prompt,
		doc.Status,
		doc.CreatedAt,
	)

	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `
		SELECT id, user_id, filename, storage_key,
		       show_tags, show_topics, analyze_images, show_recommendations, prompt,
		       processing_status, title, theme, summary, recommendations,
		       tags, blocks, failure_reason, created_at, analyzed_at
		FROM documents
		WHERE id = $1
	`

	var doc models.Document
	var tagsJSON, blocksJSON sql.NullString
	var prompt sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Filename,
		&doc.StorageKey,
		&doc.Options.ShowTags,
		&doc.Options.ShowTopics,
		&doc.Options.AnalyzeImages,
		&doc.Options.ShowRecommendations,
		&prompt,
		&doc.Status,
		&doc.Title,
		&doc.Theme,
		&doc.Summary,
		&doc.Recommendations,
		&tagsJSON,
		&blocksJSON,
		&doc.FailureReason,
		&doc.CreatedAt,
		&doc.AnalyzedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc.Options.Prompt = prompt.String

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	if blocksJSON.Valid && blocksJSON.String != "" {
		if err := json.Unmarshal([]byte(blocksJSON.String), &doc.Blocks); err != nil {
			return nil, fmt.Errorf("failed to decode blocks: %w", err)
		}
	}

	return &doc, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]models.TinyDocument, int, error) {
	// Ordered by creation time, newest first. Identifiers are UUIDv4 and
	// carry no generation order.
	query := `
		SELECT id, processing_status
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	results := []models.TinyDocument{}
	if err := r.db.SelectContext(ctx, &results, query, userID, limit, offset); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM documents WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

// CompleteAnalysis writes the terminal analysis fields and moves the
// document to completed. The status guard makes the write idempotent:
// redelivered jobs hitting an already-terminal document change nothing.
func (r *repository) CompleteAnalysis(ctx context.Context, id string, result *models.AnalysisResult) error {
	tagsJSON, err := json.Marshal(result.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	blocksJSON, err := json.Marshal(result.Blocks)
	if err != nil {
		return fmt.Errorf("failed to encode blocks: %w", err)
	}

	query := `
		UPDATE documents
		SET title = $2, theme = $3, summary = $4, recommendations = $5,
		    tags = $6, blocks = $7, processing_status = $8, analyzed_at = $9
		WHERE id = $1 AND processing_status = $10
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		result.Title,
		result.Theme,
		result.Summary,
		result.Recommendations,
		string(tagsJSON),
		string(blocksJSON),
		models.StatusCompleted,
		time.Now(),
		models.StatusProcessing,
	)
	return err
}

// MarkFailed moves the document to failed without touching analysis
// fields. Idempotent under the same status guard as CompleteAnalysis.
func (r *repository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE documents
		SET processing_status = $2, failure_reason = $3, analyzed_at = $4
		WHERE id = $1 AND processing_status = $5
	`

	_, err := r.db.ExecContext(ctx, query,
		id,
		models.StatusFailed,
		reason,
		time.Now(),
		models.StatusProcessing,
	)
	return err
}
